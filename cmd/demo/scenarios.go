package main

import (
	"context"
	"fmt"
	"time"

	"github.com/distrihq/distri/api"
	"github.com/distrihq/distri/distrierr"
	"github.com/distrihq/distri/executor"
	"github.com/distrihq/distri/model"
	"github.com/distrihq/distri/orchestrator"
	"github.com/distrihq/distri/tools"
)

const demoUser = "demo-user"

var demoBinding = tools.Binding{ServerName: "demo", Filter: tools.Filter{All: true}}

// registerAgents loads the router's scripts and registers one
// AgentDefinition per scenario, plus a handful of bystander agents used
// only to exercise list_agents pagination.
func registerAgents(ctx context.Context, orch *orchestrator.Orchestrator, router *routerModel) {
	router.register("demo-single", newScriptedModel(
		textTurn("Hello! Distri is ready to help."),
	))
	router.register("demo-search", newScriptedModel(
		toolCallTurn("call-1", "search", "{}"),
		textTurn("Based on the search, Distri is a multi-agent orchestration runtime."),
	))
	router.register("demo-artifact", newScriptedModel(
		toolCallTurn("call-1", "big_fetch", "{}"),
		textTurn("Here is a summary of the fetched document."),
	))
	router.register("demo-loop", newScriptedModel(
		toolCallTurn("call-1", "loop", "{}"),
	))
	router.register("demo-slow", newScriptedModel(
		toolCallTurn("call-1", "slow", "{}"),
		textTurn("finished the slow call"),
	))
	router.register("demo-xml", newScriptedModel(
		textTurn("<tool_calls></tool_calls>"),
		textTurn(`<tool_calls><invoke name="search"><parameter name="query">distri</parameter></invoke></tool_calls>`),
		textTurn("Found it via an XML tool call."),
	))

	agents := []orchestrator.AgentDefinition{
		{Name: "single-shot", Description: "Answers directly with no tool calls", Config: baseConfig("single-shot", "demo-single")},
		{Name: "search-answer", Description: "Searches, then answers", Config: withTools(baseConfig("search-answer", "demo-search"))},
		{Name: "artifact-spill", Description: "Fetches a large document that spills to an artifact", Config: withTools(baseConfig("artifact-spill", "demo-artifact"))},
		{Name: "iteration-cap", Description: "Never stops calling tools, hits its iteration cap", Config: withIterationCap(withTools(baseConfig("iteration-cap", "demo-loop")), 3)},
		{Name: "cancel-demo", Description: "Calls a slow tool, cancellable mid-flight", Config: withTools(baseConfig("cancel-demo", "demo-slow"))},
		{Name: "xml-retry", Description: "Emits XML tool calls, retrying a malformed first attempt", Config: withXML(withTools(baseConfig("xml-retry", "demo-xml")))},
	}
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("bystander-%02d", i+1)
		agents = append(agents, orchestrator.AgentDefinition{
			Name: name, Description: "Registered only to pad list_agents pagination",
			Config: baseConfig(name, "demo-single"),
		})
	}

	for _, def := range agents {
		if err := orch.RegisterAgent(ctx, def); err != nil {
			fmt.Printf("register_agent %s failed: %v\n", def.Name, err)
		}
	}
}

func baseConfig(agentID, modelName string) executor.AgentConfig {
	return executor.AgentConfig{
		AgentID:       agentID,
		ModelSettings: model.Settings{Model: modelName},
		Instructions:  "You are a Distri demo agent. Answer the user's request directly.",
		ToolFormat:    executor.ToolFormatStructured,
	}
}

func withTools(cfg executor.AgentConfig) executor.AgentConfig {
	cfg.ToolBindings = []tools.Binding{demoBinding}
	return cfg
}

func withIterationCap(cfg executor.AgentConfig, n int) executor.AgentConfig {
	cfg.MaxIterations = n
	return cfg
}

func withXML(cfg executor.AgentConfig) executor.AgentConfig {
	cfg.ToolFormat = executor.ToolFormatXML
	return cfg
}

func printResult(scenario string, res *orchestrator.ExecuteResult, err error) {
	fmt.Printf("\n=== %s ===\n", scenario)
	if err != nil {
		if kinded, ok := err.(distrierr.Kinded); ok {
			fmt.Printf("error (%s): %v\n", kinded.Kind(), err)
		} else {
			fmt.Printf("error: %v\n", err)
		}
		return
	}
	dto := res.Task
	fmt.Printf("task %s status=%s failure_kind=%q steps=%d\n", dto.ID, dto.Status, dto.FailureKind, len(dto.Messages))
	for _, step := range dto.Messages {
		fmt.Printf("  [%s] %s\n", step.Kind, string(step.Payload))
	}
}

func runSingleShotCompletion(ctx context.Context, orch *orchestrator.Orchestrator) {
	res, err := orch.Execute(ctx, api.ExecuteRequest{Agent: "single-shot", Message: "Say hello.", UserID: demoUser})
	printResult("single-shot completion", res, err)
}

func runSearchThenAnswer(ctx context.Context, orch *orchestrator.Orchestrator) {
	res, err := orch.Execute(ctx, api.ExecuteRequest{Agent: "search-answer", Message: "What is Distri?", UserID: demoUser})
	printResult("search then answer", res, err)
}

func runArtifactSpill(ctx context.Context, orch *orchestrator.Orchestrator) {
	res, err := orch.Execute(ctx, api.ExecuteRequest{Agent: "artifact-spill", Message: "Fetch the full document.", UserID: demoUser})
	printResult("artifact spill", res, err)
}

func runIterationCap(ctx context.Context, orch *orchestrator.Orchestrator) {
	res, err := orch.Execute(ctx, api.ExecuteRequest{Agent: "iteration-cap", Message: "Keep going forever.", UserID: demoUser})
	printResult("iteration cap", res, err)
}

// runCancellationMidStream starts a streaming task whose tool call sleeps
// several seconds, cancels it shortly after, and confirms get_task settles
// on Canceled within the stream's lifetime (spec.md Testable Property 5).
func runCancellationMidStream(ctx context.Context, orch *orchestrator.Orchestrator) {
	streamRes, err := orch.Execute(ctx, api.ExecuteRequest{Agent: "cancel-demo", Message: "Do the slow thing.", UserID: demoUser, Stream: true})
	if err != nil {
		printResult("cancellation mid-stream", nil, err)
		return
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range streamRes.Stream.Events() {
		}
	}()

	// Give the slow tool call a moment to actually start before cancelling,
	// so this exercises cancellation of an in-flight tool call rather than
	// a merely-queued task.
	time.Sleep(100 * time.Millisecond)
	if err := orch.Cancel(ctx, streamRes.TaskID); err != nil {
		fmt.Printf("cancel failed: %v\n", err)
	}

	<-drained
	streamRes.Stream.Close()

	dto, err := orch.GetTask(ctx, streamRes.TaskID)
	printResult("cancellation mid-stream", &orchestrator.ExecuteResult{TaskID: streamRes.TaskID, Task: dto}, err)
}

func runXMLParseRetry(ctx context.Context, orch *orchestrator.Orchestrator) {
	res, err := orch.Execute(ctx, api.ExecuteRequest{Agent: "xml-retry", Message: "Find it.", UserID: demoUser})
	printResult("XML parse retry", res, err)
}

func runListAgentsPagination(orch *orchestrator.Orchestrator) {
	fmt.Printf("\n=== list_agents pagination (Testable Property #1) ===\n")
	var seen []string
	cursor := ""
	for {
		page, next := orch.ListAgents(cursor, 4)
		if len(page) == 0 {
			break
		}
		for _, def := range page {
			seen = append(seen, def.Name)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	fmt.Printf("enumerated %d agents across pages: %v\n", len(seen), seen)
}
