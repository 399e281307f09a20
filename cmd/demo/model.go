package main

import (
	"context"
	"fmt"

	"github.com/distrihq/distri/model"
)

// turn is one scripted model.Response for a single scenario. A scenario
// advances to its next turn every time Complete is called for it; once the
// script is exhausted, the last turn repeats.
type turn func() model.Response

// scriptedModel replays a fixed sequence of Responses for one scenario,
// ignoring the messages it is actually given. It exists purely to make the
// executor's plan-act-observe loop deterministic for the demo scenarios
// below.
type scriptedModel struct {
	turns []turn
	next  int
}

func newScriptedModel(turns ...turn) *scriptedModel {
	return &scriptedModel{turns: turns}
}

func (m *scriptedModel) respond() model.Response {
	i := m.next
	if i >= len(m.turns) {
		i = len(m.turns) - 1
	}
	if m.next < len(m.turns) {
		m.next++
	}
	return m.turns[i]()
}

// routerModel implements model.Client by dispatching every call to the
// scriptedModel registered under settings.Model: the executor holds exactly
// one model.Client, so each demo agent is given a distinct Settings.Model
// string naming which script it should run.
type routerModel struct {
	scripts map[string]*scriptedModel
}

func newRouterModel() *routerModel {
	return &routerModel{scripts: make(map[string]*scriptedModel)}
}

func (r *routerModel) register(name string, m *scriptedModel) {
	r.scripts[name] = m
}

func (r *routerModel) Complete(_ context.Context, _ []model.Message, settings model.Settings) (*model.Response, error) {
	m, ok := r.scripts[settings.Model]
	if !ok {
		return nil, fmt.Errorf("demo: no script registered for model %q", settings.Model)
	}
	resp := m.respond()
	return &resp, nil
}

func (r *routerModel) Stream(_ context.Context, _ []model.Message, _ model.Settings) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func textTurn(text string) turn {
	return func() model.Response {
		return model.Response{Message: model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}}}
	}
}

func toolCallTurn(toolCallID, toolName, input string) turn {
	return func() model.Response {
		return model.Response{ToolCalls: []model.ToolCallPart{
			{ToolCallID: toolCallID, ToolName: toolName, Input: []byte(input)},
		}}
	}
}
