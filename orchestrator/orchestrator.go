// Package orchestrator implements the top-level facade described in §4.1:
// the agent registry, thread/task bookkeeping, and the ensure-thread →
// create-task → enqueue algorithm that hands each invocation to the
// Coordinator and AgentExecutor.
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/distrihq/distri/api"
	"github.com/distrihq/distri/coordinator"
	"github.com/distrihq/distri/distrierr"
	"github.com/distrihq/distri/eventbus"
	"github.com/distrihq/distri/executor"
	"github.com/distrihq/distri/ids"
	"github.com/distrihq/distri/journal"
	"github.com/distrihq/distri/run"
	"github.com/distrihq/distri/session"
)

// Deps groups Orchestrator's collaborators.
type Deps struct {
	Threads  run.ThreadStore
	Tasks    run.TaskStore
	Journal  journal.StepJournal
	Coord    *coordinator.Coordinator
	Executor *executor.Executor
	Sessions session.Store
	Events   *eventbus.Bus
	Tools    toolResolver
}

// ExecuteResult is what Execute and Resume return: either a completed
// TaskDTO (Stream==false), or a live Subscription a caller reads events
// from (Stream==true). Exactly one of Task and Stream is set.
type ExecuteResult struct {
	TaskID string
	Task   *api.TaskDTO
	Stream eventbus.Subscription
}

// Orchestrator is the entry point: register_agent, list_agents, get_agent,
// execute, cancel.
type Orchestrator struct {
	agents  *agentRegistry
	threads run.ThreadStore
	tasks   run.TaskStore
	journal journal.StepJournal
	coord   *coordinator.Coordinator
	exec    *executor.Executor
	sess    session.Store
	events  *eventbus.Bus

	mu          sync.Mutex
	cancels     map[string]context.CancelFunc
	preCanceled map[string]struct{}
}

// New builds an Orchestrator from its collaborators.
func New(d Deps) *Orchestrator {
	return &Orchestrator{
		agents:      newAgentRegistry(d.Tools),
		threads:     d.Threads,
		tasks:       d.Tasks,
		journal:     d.Journal,
		coord:       d.Coord,
		exec:        d.Executor,
		sess:        d.Sessions,
		events:      d.Events,
		cancels:     make(map[string]context.CancelFunc),
		preCanceled: make(map[string]struct{}),
	}
}

// RegisterAgent upserts def by name, validating its tool bindings.
func (o *Orchestrator) RegisterAgent(ctx context.Context, def AgentDefinition) error {
	return o.agents.register(ctx, def)
}

// GetAgent returns the registered definition for name, or NotFound.
func (o *Orchestrator) GetAgent(name string) (AgentDefinition, error) {
	return o.agents.get(name)
}

// ListAgents returns a name-ordered page of agent definitions.
func (o *Orchestrator) ListAgents(cursor string, limit int) ([]AgentDefinition, string) {
	return o.agents.list(cursor, limit)
}

// Execute implements the execute operation of §4.1: ensure-thread,
// create-task, enqueue ExecuteAgent. When req.Stream is false it blocks
// until the task reaches a terminal status or suspends awaiting input;
// otherwise it returns a live event Subscription immediately.
func (o *Orchestrator) Execute(ctx context.Context, req api.ExecuteRequest) (*ExecuteResult, error) {
	def, err := o.agents.get(req.Agent)
	if err != nil {
		return nil, err
	}

	threadID, err := o.ensureThread(ctx, req)
	if err != nil {
		return nil, err
	}

	taskID := ids.New()
	sub := o.events.Subscribe(taskID)

	job := &agentJob{
		o: o, def: def, taskID: taskID, threadID: threadID,
		parentTaskID: req.ParentTaskID, userID: req.UserID, message: req.Message,
	}
	if err := o.coord.Submit(job); err != nil {
		sub.Close()
		return nil, err
	}
	_ = o.threads.Touch(ctx, threadID, req.Message)

	if req.Stream {
		return &ExecuteResult{TaskID: taskID, Stream: sub}, nil
	}

	dto, err := o.awaitTerminal(ctx, taskID, sub)
	sub.Close()
	if err != nil {
		return nil, err
	}
	return &ExecuteResult{TaskID: taskID, Task: dto}, nil
}

// Resume continues a task suspended awaiting input: it appends the user's
// reply as the pending tool call's Observation and re-enqueues the agent
// from where it suspended.
func (o *Orchestrator) Resume(ctx context.Context, taskID, toolCallID, reply string, stream bool) (*ExecuteResult, error) {
	task, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != run.StatusInputRequired {
		return nil, &distrierr.Session{Detail: "task " + taskID + " is not awaiting input"}
	}
	thread, err := o.threads.Get(ctx, task.ThreadID)
	if err != nil {
		return nil, err
	}
	def, err := o.agents.get(thread.AgentID)
	if err != nil {
		return nil, err
	}

	sub := o.events.Subscribe(taskID)
	job := &agentJob{
		o: o, def: def, taskID: taskID, threadID: task.ThreadID, parentTaskID: task.ParentTaskID,
		userID: thread.UserID, isResume: true, toolCallID: toolCallID, reply: reply,
	}
	if err := o.coord.Submit(job); err != nil {
		sub.Close()
		return nil, err
	}

	if stream {
		return &ExecuteResult{TaskID: taskID, Stream: sub}, nil
	}

	dto, err := o.awaitTerminal(ctx, taskID, sub)
	sub.Close()
	if err != nil {
		return nil, err
	}
	return &ExecuteResult{TaskID: taskID, Task: dto}, nil
}

// GetTask returns the wire TaskDTO for taskID, replaying its journal. Used
// by get_task(t) (spec.md invariant 3, Testable Property 5).
func (o *Orchestrator) GetTask(ctx context.Context, taskID string) (*api.TaskDTO, error) {
	return o.loadTaskDTO(ctx, taskID)
}

// Cancel implements cancel: idempotent, transitions a non-terminal task to
// Canceled and signals its executor if one is currently running.
func (o *Orchestrator) Cancel(ctx context.Context, taskID string) error {
	task, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		var nf *distrierr.NotFound
		if asNotFound(err, &nf) {
			// Task has been submitted but its job has not started running
			// yet (still queued): record the request so Run short-circuits
			// to Canceled the moment a worker picks it up.
			o.mu.Lock()
			o.preCanceled[taskID] = struct{}{}
			o.mu.Unlock()
			return nil
		}
		return err
	}
	if task.Status.Terminal() {
		return nil
	}

	o.mu.Lock()
	cancel, active := o.cancels[taskID]
	o.mu.Unlock()
	if active {
		cancel()
		return nil
	}

	// Suspended (InputRequired) with no in-flight goroutine: transition
	// directly and tear down the task's queue/topic presence ourselves.
	if err := o.tasks.SetStatus(ctx, taskID, run.StatusCanceled, ""); err != nil {
		return err
	}
	o.events.Publish(eventbus.NewTaskCancelledEvent(taskID))
	o.coord.Release(taskID)
	o.events.CloseTopic(taskID)
	return nil
}

func (o *Orchestrator) ensureThread(ctx context.Context, req api.ExecuteRequest) (string, error) {
	if req.ThreadID != "" {
		if _, err := o.threads.Get(ctx, req.ThreadID); err == nil {
			return req.ThreadID, nil
		}
	}
	id := ids.New()
	thread := &run.Thread{
		ID: id, AgentID: req.Agent, UserID: req.UserID,
		CreatedAt: time.Now(), UpdatedAt: time.Now(), Metadata: req.Metadata,
	}
	if err := o.threads.Create(ctx, thread); err != nil {
		return "", err
	}
	return id, nil
}

// awaitTerminal blocks until taskID reaches a terminal status or suspends
// awaiting input, then loads its TaskDTO.
func (o *Orchestrator) awaitTerminal(ctx context.Context, taskID string, sub eventbus.Subscription) (*api.TaskDTO, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-sub.Events():
			if !ok {
				return o.loadTaskDTO(ctx, taskID)
			}
			switch ev.(type) {
			case *eventbus.TaskCompletedEvent, *eventbus.TaskFailedEvent,
				*eventbus.TaskCancelledEvent, *eventbus.InputRequiredEvent:
				return o.loadTaskDTO(ctx, taskID)
			}
		}
	}
}

func (o *Orchestrator) loadTaskDTO(ctx context.Context, taskID string) (*api.TaskDTO, error) {
	task, err := o.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	steps, err := o.journal.Load(ctx, taskID, task.ParentTaskID, 0)
	if err != nil {
		return nil, err
	}
	dto := api.TaskToDTO(task, steps)
	return &dto, nil
}

func (o *Orchestrator) registerCancel(taskID string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancels[taskID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) unregisterCancel(taskID string) {
	o.mu.Lock()
	delete(o.cancels, taskID)
	o.mu.Unlock()
}

func (o *Orchestrator) consumePreCanceled(taskID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.preCanceled[taskID]
	delete(o.preCanceled, taskID)
	return ok
}

// failWithoutExecutor terminates a task that never reached the executor
// (e.g. the per-user session handle could not be acquired before ctx
// expired).
func (o *Orchestrator) failWithoutExecutor(ctx context.Context, taskID string, cause error) {
	if cause == context.Canceled {
		_ = o.tasks.SetStatus(ctx, taskID, run.StatusCanceled, "")
		o.events.Publish(eventbus.NewTaskCancelledEvent(taskID))
	} else {
		_ = o.tasks.SetStatus(ctx, taskID, run.StatusFailed, "")
		o.events.Publish(eventbus.NewTaskFailedEvent(taskID, ""))
	}
	o.coord.Release(taskID)
	o.events.CloseTopic(taskID)
}

func (o *Orchestrator) finishJob(ctx context.Context, taskID string, result *executor.Result) {
	if result == nil {
		_ = o.tasks.SetStatus(ctx, taskID, run.StatusFailed, "")
		o.coord.Release(taskID)
		o.events.CloseTopic(taskID)
		return
	}
	_ = o.tasks.SetStatus(ctx, taskID, result.Status, result.FailureKind)
	if result.Status.Terminal() {
		o.coord.Release(taskID)
		o.events.CloseTopic(taskID)
	}
}

// agentJob is the coordinator.Job enqueued by Execute and Resume. Task
// creation and journal bookkeeping happen inside Run, never before Submit:
// Submit is asynchronous (a buffered channel send), so a worker may begin
// Run before Execute returns, and a full queue must leave no Task record
// behind.
type agentJob struct {
	o            *Orchestrator
	def          AgentDefinition
	taskID       string
	threadID     string
	parentTaskID string
	userID       string

	message string

	isResume   bool
	toolCallID string
	reply      string
}

func (j *agentJob) TaskID() string { return j.taskID }

func (j *agentJob) Run(ctx context.Context) {
	o := j.o

	if !j.isResume {
		if o.consumePreCanceled(j.taskID) {
			task := &run.Task{
				ID: j.taskID, ThreadID: j.threadID, ParentTaskID: j.parentTaskID,
				Status: run.StatusCanceled, CreatedAt: time.Now(), UpdatedAt: time.Now(),
			}
			_ = o.tasks.Create(ctx, task)
			o.events.Publish(eventbus.NewTaskCancelledEvent(j.taskID))
			o.coord.Release(j.taskID)
			o.events.CloseTopic(j.taskID)
			return
		}

		task := &run.Task{
			ID: j.taskID, ThreadID: j.threadID, ParentTaskID: j.parentTaskID,
			Status: run.StatusSubmitted, CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}
		if err := o.tasks.Create(ctx, task); err != nil {
			return
		}
		o.events.Publish(eventbus.NewTaskCreatedEvent(j.taskID, j.threadID, j.def.Name))

		payload, err := json.Marshal(journal.TaskPayload{Text: j.message})
		if err == nil {
			_, _ = o.journal.Append(ctx, journal.MemoryStep{
				TaskID: j.taskID, ParentTaskID: j.parentTaskID, Kind: journal.StepTask, Payload: payload,
			})
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.registerCancel(j.taskID, cancel)
	defer o.unregisterCancel(j.taskID)
	defer cancel()

	handle, err := o.sess.Acquire(runCtx, j.userID, j.taskID)
	if err != nil {
		o.failWithoutExecutor(ctx, j.taskID, err)
		return
	}
	defer func() { _ = o.sess.Release(context.Background(), handle.UserID, handle.TaskID) }()

	if err := o.tasks.SetStatus(runCtx, j.taskID, run.StatusRunning, ""); err != nil {
		return
	}
	o.events.Publish(eventbus.NewTaskRunningEvent(j.taskID))

	var result *executor.Result
	if j.isResume {
		result, _ = o.exec.Resume(runCtx, j.def.Config, executor.ResumeRequest{
			TaskID: j.taskID, ThreadID: j.threadID, ParentTaskID: j.parentTaskID, UserID: j.userID,
			ToolCallID: j.toolCallID, Reply: j.reply,
		})
	} else {
		result, _ = o.exec.Run(runCtx, j.def.Config, executor.RunRequest{
			TaskID: j.taskID, ThreadID: j.threadID, ParentTaskID: j.parentTaskID, UserID: j.userID,
		})
	}
	o.finishJob(ctx, j.taskID, result)
}

// asNotFound is errors.As spelled out locally (distrierr.NotFound has no
// Unwrap chain of its own here, so a direct type assertion suffices).
func asNotFound(err error, target **distrierr.NotFound) bool {
	nf, ok := err.(*distrierr.NotFound)
	if !ok {
		return false
	}
	*target = nf
	return true
}
