package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// OrchestratorOptions configures a new orchestrator.
type OrchestratorOptions struct {
	// Config tunes retry budgets, fix cycles, and approvals. Nil selects
	// the defaults.
	Config *Config

	// Store persists workflow state between phases. Nil selects the null
	// store, which keeps nothing.
	Store StateStore

	// Checkpointer records snapshots at phase boundaries. Nil disables
	// checkpointing.
	Checkpointer Checkpointer

	// Journal records the append-only event history. Nil disables it.
	Journal Journal

	// Executors resolves the executor for each phase. Resolution happens
	// lazily the first time a phase runs. Required.
	Executors ExecutorProvider

	// Hooks are dispatched at phase boundaries after the built-in hooks.
	Hooks []WorkflowHook

	// ApprovalHooks adjudicate gates and receive notifications.
	ApprovalHooks []ApprovalHook

	Logger *slog.Logger

	// DisableDefaultHooks suppresses the built-in logging, checkpointing,
	// and journaling hooks.
	DisableDefaultHooks bool
}

// Orchestrator drives workflows through the phase lifecycle: executing
// phases, evaluating approval gates, retrying recoverable failures, and
// persisting state after every change. Phase failures never escape Run or
// Resume; they end the workflow in a terminal phase instead.
type Orchestrator struct {
	config       Config
	store        StateStore
	checkpointer Checkpointer
	journal      Journal
	executors    ExecutorProvider
	dispatcher   *HookDispatcher
	gate         *ApprovalGate
	retryPolicy  *RetryPolicy
	logger       *slog.Logger

	mutex         sync.Mutex
	executorCache map[Phase]PhaseExecutor
	running       bool
	cancelPending atomic.Bool
}

// NewOrchestrator creates an orchestrator from the given options.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Executors == nil {
		return nil, fmt.Errorf("executor provider is required")
	}
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Store == nil {
		opts.Store = NewNullStateStore()
	}
	if opts.Checkpointer == nil {
		opts.Checkpointer = NewNullCheckpointer()
	}
	if opts.Journal == nil {
		opts.Journal = NewNullJournal()
	}

	dispatcher := NewHookDispatcher(opts.Logger)
	if !opts.DisableDefaultHooks {
		dispatcher.Add(NewLoggingHook(opts.Logger))
		dispatcher.Add(NewCheckpointHook(opts.Checkpointer))
		dispatcher.Add(NewJournalHook(opts.Journal))
	}
	for _, hook := range opts.Hooks {
		dispatcher.Add(hook)
	}

	return &Orchestrator{
		config:        cfg,
		store:         opts.Store,
		checkpointer:  opts.Checkpointer,
		journal:       opts.Journal,
		executors:     opts.Executors,
		dispatcher:    dispatcher,
		gate:          NewApprovalGate(opts.ApprovalHooks, cfg.AutoApprove, cfg.ApprovalTimeoutDuration(), opts.Logger),
		retryPolicy:   NewRetryPolicy(cfg.MaxRetries, opts.Logger),
		logger:        opts.Logger,
		executorCache: map[Phase]PhaseExecutor{},
	}, nil
}

// Run starts a new workflow from the request and drives it until it
// reaches a terminal phase. Phase failures are recorded in the returned
// state rather than returned as errors; a non-nil error means the
// orchestration machinery itself failed (invalid request, duplicate id,
// unreachable store).
func (o *Orchestrator) Run(ctx context.Context, request *RunRequest) (*WorkflowState, error) {
	if request == nil {
		return nil, NewConfigurationError("run request required")
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}
	engine := request.Engine
	if engine == "" {
		engine = o.config.DefaultEngine
	}
	id := request.ID
	if id == "" {
		id = NewWorkflowID()
	} else if _, err := o.store.Load(ctx, id); err == nil {
		return nil, NewConfigurationError("workflow %q already exists", id)
	} else {
		var notFound *StateNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	state := NewWorkflowState(id, strings.TrimSpace(request.Prompt), engine)
	if err := o.persist(ctx, state); err != nil {
		return nil, err
	}
	o.logger.Info("starting workflow",
		"workflow_id", state.ID,
		"engine", engine)
	return o.execute(ctx, state)
}

// Resume continues a stored workflow from its current phase. An empty id
// selects the most recently updated non-terminal workflow. Resuming a
// finished workflow returns ErrWorkflowFinished alongside its state.
func (o *Orchestrator) Resume(ctx context.Context, workflowID string) (*WorkflowState, error) {
	if workflowID == "" {
		summaries, err := o.store.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, summary := range summaries {
			if !summary.Phase.Terminal() {
				workflowID = summary.ID
				break
			}
		}
		if workflowID == "" {
			return nil, ErrNoActiveWorkflow
		}
	}
	state, err := o.store.Load(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if state.Terminal() {
		return state, ErrWorkflowFinished
	}
	o.logger.Info("resuming workflow",
		"workflow_id", state.ID,
		"phase", state.Phase)
	return o.execute(ctx, state)
}

// Cancel requests graceful cancellation of the run currently executing in
// this process. The request is honored at the next phase boundary.
func (o *Orchestrator) Cancel() {
	o.cancelPending.Store(true)
}

// CancelWorkflow cancels a stored workflow that is not running in this
// process. Terminal workflows return ErrWorkflowFinished.
func (o *Orchestrator) CancelWorkflow(ctx context.Context, workflowID string) (*WorkflowState, error) {
	state, err := o.store.Load(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if state.Terminal() {
		return state, ErrWorkflowFinished
	}
	return o.cancelRun(ctx, state)
}

// RetryPhase re-runs the phase a failed workflow died in, with a fresh
// retry budget, and continues the run from there. It is an operator
// escape hatch: the failed terminal phase is deliberately re-opened.
func (o *Orchestrator) RetryPhase(ctx context.Context, workflowID string) (*WorkflowState, error) {
	state, err := o.store.Load(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if state.Phase != PhaseFailed {
		return state, NewConfigurationError("workflow %s is %s, only failed workflows can be retried", workflowID, state.Phase)
	}
	last := state.LastError()
	if last == nil {
		return state, NewConfigurationError("workflow %s has no recorded failure to retry", workflowID)
	}
	if !last.Phase.Executable() {
		return state, NewConfigurationError("workflow %s failed outside an executable phase", workflowID)
	}

	state.Phase = last.Phase
	state.ResetRetries(last.Phase)
	state.Touch()
	if _, err := o.checkpointer.Checkpoint(ctx, state, CheckpointReasonManual); err != nil {
		o.logger.Warn("failed to checkpoint before phase retry",
			"workflow_id", state.ID,
			"error", err)
	}
	if err := o.persist(ctx, state); err != nil {
		return state, err
	}
	o.logger.Info("retrying failed phase",
		"workflow_id", state.ID,
		"phase", state.Phase)
	return o.execute(ctx, state)
}

// RollbackToCheckpoint replaces a workflow's state with the snapshot in
// the named checkpoint. The workflow is not resumed; newer checkpoints
// are retained.
func (o *Orchestrator) RollbackToCheckpoint(ctx context.Context, checkpointID string) (*WorkflowState, error) {
	checkpoint, err := o.checkpointer.LoadCheckpoint(ctx, checkpointID)
	if err != nil {
		return nil, err
	}
	if checkpoint == nil || checkpoint.State == nil {
		return nil, fmt.Errorf("checkpoint %q not found", checkpointID)
	}
	state := checkpoint.State.Clone()
	if err := o.persist(ctx, state); err != nil {
		return nil, err
	}
	o.logger.Info("rolled back workflow",
		"workflow_id", state.ID,
		"checkpoint_id", checkpoint.ID,
		"sequence", checkpoint.Sequence,
		"phase", state.Phase)
	return state, nil
}

// execute drives state to a terminal phase. Executor and gate failures
// are absorbed into the state; returned errors are machinery failures.
func (o *Orchestrator) execute(ctx context.Context, state *WorkflowState) (*WorkflowState, error) {
	if err := o.begin(); err != nil {
		return state, err
	}
	defer o.end()

	if state.Phase == PhaseInit {
		o.dispatcher.PhaseStart(ctx, PhaseInit, state)
		o.dispatcher.PhaseComplete(ctx, PhaseInit, state, &PhaseResult{})
		if err := state.Transition(PhaseDesign); err != nil {
			return state, err
		}
		if err := o.persist(ctx, state); err != nil {
			return state, err
		}
	}

	for state.Phase.Executable() {
		if o.cancelRequested(ctx) {
			return o.cancelRun(ctx, state)
		}

		phase := state.Phase
		result, execErr := o.attemptPhase(ctx, state)
		if execErr != nil {
			if o.cancelRequested(ctx) {
				return o.cancelRun(ctx, state)
			}
			state.RecordError(phase, ErrorKind(execErr), execErr.Error())
			o.dispatcher.Error(ctx, phase, state, execErr)
			if o.retryPolicy.ShouldRetry(state, phase, execErr) {
				if err := o.persist(ctx, state); err != nil {
					return state, err
				}
				continue
			}
			return o.fail(ctx, state, phase, execErr)
		}

		if o.cancelRequested(ctx) {
			return o.cancelRun(ctx, state)
		}

		if phase == PhaseQA && result.Rework {
			if err := o.rework(ctx, state, result); err != nil {
				state.RecordError(phase, ErrorKind(err), err.Error())
				o.dispatcher.Error(ctx, phase, state, err)
				return o.fail(ctx, state, phase, err)
			}
			if err := o.persist(ctx, state); err != nil {
				return state, err
			}
			continue
		}

		if haltErr := o.evaluateGate(ctx, state, phase); haltErr != nil {
			if !IsApprovalHalt(haltErr) {
				if o.cancelRequested(ctx) {
					return o.cancelRun(ctx, state)
				}
				return state, haltErr
			}
			state.RecordError(phase, ErrorKind(haltErr), haltErr.Error())
			o.dispatcher.Error(ctx, phase, state, haltErr)
			return o.fail(ctx, state, phase, haltErr)
		}

		if err := state.Transition(NextPhase(phase)); err != nil {
			return state, err
		}
		if err := o.persist(ctx, state); err != nil {
			return state, err
		}
	}

	if state.Phase == PhaseComplete {
		o.logger.Info("workflow completed",
			"workflow_id", state.ID,
			"fix_cycles", state.FixCycles)
		if o.config.Notifications.Completion {
			o.gate.Notify(ctx, fmt.Sprintf("workflow %s completed", state.ID), SeverityInfo)
		}
	}
	return state, nil
}

// attemptPhase runs a single execution attempt of the current phase:
// start hooks, executor, artifact merge, completion hooks.
func (o *Orchestrator) attemptPhase(ctx context.Context, state *WorkflowState) (*PhaseResult, error) {
	phase := state.Phase
	o.dispatcher.PhaseStart(ctx, phase, state)

	executor, err := o.executor(phase)
	if err != nil {
		return nil, err
	}
	result, err := executor.Execute(ctx, state.Clone())
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &PhaseResult{}
	}
	state.MergeArtifacts(phase, result.Artifacts)
	state.Touch()
	o.dispatcher.PhaseComplete(ctx, phase, state, result)
	return result, nil
}

// executor resolves and caches the executor for a phase.
func (o *Orchestrator) executor(phase Phase) (PhaseExecutor, error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if executor, ok := o.executorCache[phase]; ok {
		return executor, nil
	}
	executor, err := o.executors.ExecutorForPhase(phase)
	if err != nil {
		return nil, err
	}
	if executor == nil {
		return nil, NewConfigurationError("no executor registered for phase %q", phase)
	}
	o.executorCache[phase] = executor
	return executor, nil
}

// rework sends the workflow back to build after QA requested changes,
// respecting the fix cycle budget and granting fresh retry budgets to the
// phases being re-run.
func (o *Orchestrator) rework(ctx context.Context, state *WorkflowState, result *PhaseResult) error {
	state.FixCycles++
	if state.FixCycles > o.config.MaxFixCycles {
		return &FixCycleLimitError{Cycles: state.FixCycles, Limit: o.config.MaxFixCycles}
	}
	o.logger.Info("qa requested rework",
		"workflow_id", state.ID,
		"fix_cycle", state.FixCycles,
		"max_fix_cycles", o.config.MaxFixCycles,
		"feedback", result.Feedback)
	if result.Feedback != "" {
		state.MergeArtifacts(PhaseQA, map[string]any{"rework_feedback": result.Feedback})
	}
	state.ResetRetries(PhaseBuild, PhaseQA)
	return state.Transition(PhaseBuild)
}

// evaluateGate runs the approval gate guarding the given phase, if any,
// and journals the decision.
func (o *Orchestrator) evaluateGate(ctx context.Context, state *WorkflowState, phase Phase) error {
	gate, ok := gateForPhase(phase)
	if !ok {
		return nil
	}
	haltErr := o.gate.Evaluate(ctx, state, gate)
	if record := state.Approval(gate); record != nil {
		o.journalAppend(ctx, &PhaseEvent{
			WorkflowID: state.ID,
			Event:      JournalEventApproval,
			Phase:      phase,
			Kind:       string(record.Decision),
			Message:    record.Feedback,
		})
	}
	if haltErr != nil {
		return haltErr
	}
	return o.persist(ctx, state)
}

// fail moves the workflow to the failed phase. The cause has already been
// recorded in the error history by the caller.
func (o *Orchestrator) fail(ctx context.Context, state *WorkflowState, phase Phase, cause error) (*WorkflowState, error) {
	cleanupCtx := context.WithoutCancel(ctx)
	if err := state.Transition(PhaseFailed); err != nil {
		return state, err
	}
	if err := o.persist(cleanupCtx, state); err != nil {
		return state, err
	}
	o.logger.Error("workflow failed",
		"workflow_id", state.ID,
		"phase", phase,
		"kind", ErrorKind(cause),
		"error", cause)
	if IsApprovalHalt(cause) {
		if o.config.Notifications.Approvals {
			o.gate.Notify(cleanupCtx, fmt.Sprintf("workflow %s halted: %v", state.ID, cause), SeverityWarning)
		}
	} else if o.config.Notifications.Errors {
		o.gate.Notify(cleanupCtx, fmt.Sprintf("workflow %s failed in %s: %v", state.ID, phase, cause), SeverityError)
	}
	return state, nil
}

// cancelRun moves the workflow to the cancelled phase, taking a manual
// checkpoint of the final state.
func (o *Orchestrator) cancelRun(ctx context.Context, state *WorkflowState) (*WorkflowState, error) {
	cleanupCtx := context.WithoutCancel(ctx)
	phase := state.Phase
	if err := state.Transition(PhaseCancelled); err != nil {
		return state, err
	}
	if _, err := o.checkpointer.Checkpoint(cleanupCtx, state, CheckpointReasonManual); err != nil {
		o.logger.Warn("failed to checkpoint cancelled workflow",
			"workflow_id", state.ID,
			"error", err)
	}
	o.journalAppend(cleanupCtx, &PhaseEvent{
		WorkflowID: state.ID,
		Event:      JournalEventCancelled,
		Phase:      phase,
		Kind:       ErrorKindCancelled,
	})
	if err := o.persist(cleanupCtx, state); err != nil {
		return state, err
	}
	o.logger.Info("workflow cancelled",
		"workflow_id", state.ID,
		"phase", phase)
	if o.config.Notifications.Completion {
		o.gate.Notify(cleanupCtx, fmt.Sprintf("workflow %s cancelled", state.ID), SeverityWarning)
	}
	return state, nil
}

func (o *Orchestrator) cancelRequested(ctx context.Context) bool {
	return o.cancelPending.Load() || ctx.Err() != nil
}

func (o *Orchestrator) persist(ctx context.Context, state *WorkflowState) error {
	if err := o.store.Save(ctx, state); err != nil {
		return fmt.Errorf("persist workflow state: %w", err)
	}
	return nil
}

func (o *Orchestrator) journalAppend(ctx context.Context, event *PhaseEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := o.journal.Append(ctx, event); err != nil {
		o.logger.Warn("failed to append journal event",
			"workflow_id", event.WorkflowID,
			"event", event.Event,
			"error", err)
	}
}

func (o *Orchestrator) begin() error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if o.running {
		return fmt.Errorf("orchestrator is already running a workflow")
	}
	o.running = true
	o.cancelPending.Store(false)
	return nil
}

func (o *Orchestrator) end() {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.running = false
}
