// Command demo wires an in-memory Distri stack together and drives it
// through the runtime's plan-act-observe loop for a handful of scripted
// scenarios, printing each task's resulting TaskDTO so the runtime's
// behaviour can be inspected without a real model provider or tool backend.
package main

import (
	"context"

	"github.com/distrihq/distri/artifact"
	"github.com/distrihq/distri/auth"
	"github.com/distrihq/distri/blob/memory"
	"github.com/distrihq/distri/coordinator"
	"github.com/distrihq/distri/eventbus"
	"github.com/distrihq/distri/executor"
	journalmem "github.com/distrihq/distri/journal/inmem"
	"github.com/distrihq/distri/orchestrator"
	"github.com/distrihq/distri/prompt"
	"github.com/distrihq/distri/run"
	sessionmem "github.com/distrihq/distri/session/inmem"
	"github.com/distrihq/distri/toolruntime"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := newRouterModel()

	stepJournal := journalmem.New()
	threads := run.NewMemoryThreadStore()
	tasks := run.NewMemoryTaskStore()
	sessions := sessionmem.New()
	events := eventbus.New(0)
	blobs := memory.New()
	artifacts := artifact.New(blobs)
	authStore := auth.NewMemoryStore()

	toolRuntime := toolruntime.New(authStore)
	toolRuntime.Register(toolruntime.ProviderConfig{Name: "demo"}, demoTransport{})

	prompts := prompt.New()
	_ = prompts.Register("default", "You are a Distri demo agent. Answer the user's request directly.")

	exec := executor.New(executor.Deps{
		Journal:   stepJournal,
		Model:     router,
		Tools:     toolRuntime,
		Artifacts: artifacts,
		Prompts:   prompts,
		Events:    events,
	})

	coord := coordinator.New(coordinator.Options{Workers: 4, QueueCapacity: 20})
	coord.Start(ctx)
	defer coord.Stop()

	orch := orchestrator.New(orchestrator.Deps{
		Threads:  threads,
		Tasks:    tasks,
		Journal:  stepJournal,
		Coord:    coord,
		Executor: exec,
		Sessions: sessions,
		Events:   events,
		Tools:    toolRuntime,
	})

	registerAgents(ctx, orch, router)

	runSingleShotCompletion(ctx, orch)
	runSearchThenAnswer(ctx, orch)
	runArtifactSpill(ctx, orch)
	runIterationCap(ctx, orch)
	runCancellationMidStream(ctx, orch)
	runXMLParseRetry(ctx, orch)
	runListAgentsPagination(orch)
}
