// Package executors provides phase executors that delegate the actual
// design, build, qa, and publish work to external commands.
package executors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/deepnoodle-ai/pipeline"
)

// CommandExecutor runs a configured command for a phase. Workflow context
// is passed through PIPELINE_* environment variables, and the command's
// stdout is captured as the phase result: a JSON object with artifacts,
// feedback, and rework keys when the command emits one, the raw output as
// a single artifact otherwise.
type CommandExecutor struct {
	argv       []string
	timeout    time.Duration
	workingDir string
	logger     *slog.Logger
}

// CommandExecutorOptions configures a CommandExecutor.
type CommandExecutorOptions struct {
	// Argv is the command and its arguments. Required.
	Argv []string

	// Timeout bounds the command's runtime. Zero disables the limit.
	Timeout time.Duration

	// WorkingDir sets the command's working directory.
	WorkingDir string

	Logger *slog.Logger
}

// commandResult is the JSON contract a command may emit on stdout.
type commandResult struct {
	Artifacts map[string]any `json:"artifacts"`
	Feedback  string         `json:"feedback"`
	Rework    bool           `json:"rework"`
}

// NewCommandExecutor creates an executor for the given command line.
func NewCommandExecutor(opts CommandExecutorOptions) (*CommandExecutor, error) {
	if len(opts.Argv) == 0 {
		return nil, pipeline.NewConfigurationError("command executor requires a command")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CommandExecutor{
		argv:       opts.Argv,
		timeout:    opts.Timeout,
		workingDir: opts.WorkingDir,
		logger:     opts.Logger,
	}, nil
}

// Execute runs the command for the state's current phase.
func (e *CommandExecutor) Execute(ctx context.Context, state *pipeline.WorkflowState) (*pipeline.PhaseResult, error) {
	phase := state.Phase
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.argv[0], e.argv[1:]...)
	if e.workingDir != "" {
		cmd.Dir = e.workingDir
	}
	cmd.Env = append(os.Environ(), commandEnv(state)...)

	e.logger.Debug("running phase command",
		"workflow_id", state.ID,
		"phase", phase,
		"command", e.argv[0])

	stdout, err := cmd.Output()
	if err != nil {
		return nil, e.classify(ctx, phase, stdout, err)
	}
	return parseCommandOutput(stdout), nil
}

// classify converts a command failure into the pipeline error taxonomy:
// missing binaries are configuration errors, deadline hits are timeouts,
// non-zero exits are phase failures carrying the command's stderr.
func (e *CommandExecutor) classify(ctx context.Context, phase pipeline.Phase, stdout []byte, err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return pipeline.NewConfigurationError("phase %s command not found: %v", phase, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("phase %s command timed out: %w", phase, ctxErr)
		}
		return fmt.Errorf("phase %s command cancelled: %w", phase, ctxErr)
	}
	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		message := fmt.Sprintf("command exited with code %d", exitError.ExitCode())
		if detail := tail(string(exitError.Stderr), 2000); detail != "" {
			message = fmt.Sprintf("%s: %s", message, detail)
		} else if detail := tail(string(stdout), 2000); detail != "" {
			message = fmt.Sprintf("%s: %s", message, detail)
		}
		return phaseFailure(phase, message, err)
	}
	return fmt.Errorf("failed to execute phase %s command: %w", phase, err)
}

// commandEnv builds the PIPELINE_* variables describing the run.
func commandEnv(state *pipeline.WorkflowState) []string {
	env := []string{
		"PIPELINE_WORKFLOW_ID=" + state.ID,
		"PIPELINE_PHASE=" + state.Phase.String(),
		"PIPELINE_PROMPT=" + state.Prompt,
		"PIPELINE_ENGINE=" + state.Engine,
		"PIPELINE_FIX_CYCLES=" + strconv.Itoa(state.FixCycles),
		"PIPELINE_ATTEMPT=" + strconv.Itoa(state.RetryCount(state.Phase)+1),
	}
	if qa := state.Artifacts[pipeline.PhaseQA.String()]; qa != nil {
		if feedback, ok := qa["rework_feedback"].(string); ok && feedback != "" {
			env = append(env, "PIPELINE_REWORK_FEEDBACK="+feedback)
		}
	}
	return env
}

// parseCommandOutput decodes the result contract when stdout carries a
// JSON object, otherwise wraps the raw output as an artifact.
func parseCommandOutput(stdout []byte) *pipeline.PhaseResult {
	trimmed := strings.TrimSpace(string(stdout))
	if strings.HasPrefix(trimmed, "{") {
		var result commandResult
		if err := json.Unmarshal([]byte(trimmed), &result); err == nil {
			return &pipeline.PhaseResult{
				Artifacts: result.Artifacts,
				Feedback:  result.Feedback,
				Rework:    result.Rework,
			}
		}
	}
	result := &pipeline.PhaseResult{}
	if trimmed != "" {
		result.Artifacts = map[string]any{"output": tail(trimmed, 4000)}
	}
	return result
}

func phaseFailure(phase pipeline.Phase, message string, cause error) error {
	switch phase {
	case pipeline.PhaseBuild:
		return pipeline.NewBuildFailedError(message, cause)
	case pipeline.PhaseQA:
		return pipeline.NewQAFailedError(message, cause)
	case pipeline.PhasePublish:
		return pipeline.NewPublishFailedError(message, cause)
	default:
		return pipeline.NewAgentError(phase, message, cause)
	}
}

func tail(text string, max int) string {
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	return "..." + text[len(text)-max:]
}

// NewCommandProvider builds an executor provider from the commands
// configured per phase. Phases without a configured command fail with a
// configuration error when first executed.
func NewCommandProvider(cfg *pipeline.Config, logger *slog.Logger) (pipeline.ExecutorProvider, error) {
	executors := pipeline.ExecutorMap{}
	for name, argv := range cfg.Commands {
		phase, ok := pipeline.ParsePhase(name)
		if !ok {
			return nil, pipeline.NewConfigurationError("commands: unknown phase %q", name)
		}
		executor, err := NewCommandExecutor(CommandExecutorOptions{
			Argv:    argv,
			Timeout: cfg.CommandTimeoutDuration(),
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		executors[phase] = executor
	}
	return executors, nil
}
