package hooks

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/deepnoodle-ai/pipeline"
	"github.com/fatih/color"
)

// ConsoleHook prints phase progress to the terminal with colorized output.
type ConsoleHook struct {
	out io.Writer
}

// NewConsoleHook creates a console hook writing to stdout.
func NewConsoleHook() *ConsoleHook {
	return &ConsoleHook{out: color.Output}
}

// NewConsoleHookWriter creates a console hook writing to w.
func NewConsoleHookWriter(w io.Writer) *ConsoleHook {
	return &ConsoleHook{out: w}
}

func (h *ConsoleHook) OnPhaseStart(ctx context.Context, phase pipeline.Phase, state *pipeline.WorkflowState) error {
	attempt := ""
	if n := state.RetryCount(phase); n > 0 {
		attempt = fmt.Sprintf(" (attempt %d)", n+1)
	}
	color.New(color.FgCyan).Fprintf(h.out, "> %s: %s phase started%s\n", state.ID, phase, attempt)
	return nil
}

func (h *ConsoleHook) OnPhaseComplete(ctx context.Context, phase pipeline.Phase, state *pipeline.WorkflowState, result *pipeline.PhaseResult) error {
	if result != nil && result.Rework {
		color.New(color.FgYellow).Fprintf(h.out, "~ %s: %s requested rework\n", state.ID, phase)
		return nil
	}
	color.New(color.FgGreen).Fprintf(h.out, "+ %s: %s phase complete\n", state.ID, phase)
	return nil
}

func (h *ConsoleHook) OnError(ctx context.Context, phase pipeline.Phase, state *pipeline.WorkflowState, err error) error {
	color.New(color.FgRed).Fprintf(h.out, "! %s: %s phase failed: %v\n", state.ID, phase, err)
	return nil
}

// ConsoleApprovalHook collects gate decisions interactively from the
// terminal. An answer other than yes rejects the gate, and a follow-up
// line is read as feedback.
type ConsoleApprovalHook struct {
	in    io.Reader
	out   io.Writer
	once  sync.Once
	lines chan lineResult
}

type lineResult struct {
	text string
	err  error
}

// NewConsoleApprovalHook creates an approval hook reading from stdin and
// writing to stdout.
func NewConsoleApprovalHook() *ConsoleApprovalHook {
	return &ConsoleApprovalHook{in: os.Stdin, out: color.Output}
}

// NewConsoleApprovalHookIO creates an approval hook with explicit streams.
func NewConsoleApprovalHookIO(in io.Reader, out io.Writer) *ConsoleApprovalHook {
	return &ConsoleApprovalHook{in: in, out: out}
}

// RequestApproval prompts for a decision and blocks until one is entered
// or ctx expires.
func (h *ConsoleApprovalHook) RequestApproval(ctx context.Context, request *pipeline.ApprovalRequest) (*pipeline.ApprovalResponse, error) {
	color.New(color.FgYellow, color.Bold).Fprintf(h.out, "\napproval required: %s gate\n", request.Gate)
	fmt.Fprintf(h.out, "  workflow: %s\n", request.WorkflowID)
	fmt.Fprintf(h.out, "  phase:    %s\n", request.Phase)
	if request.Prompt != "" {
		fmt.Fprintf(h.out, "  prompt:   %s\n", request.Prompt)
	}
	printArtifacts(h.out, request.Artifacts)

	fmt.Fprintf(h.out, "approve? [y/N]: ")
	answer, err := h.readLine(ctx)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return &pipeline.ApprovalResponse{Approved: true}, nil
	}

	fmt.Fprintf(h.out, "feedback (optional): ")
	feedback, err := h.readLine(ctx)
	if err != nil {
		return nil, err
	}
	return &pipeline.ApprovalResponse{
		Approved: false,
		Feedback: strings.TrimSpace(feedback),
	}, nil
}

// SendNotification prints the message with a severity-colored prefix.
func (h *ConsoleApprovalHook) SendNotification(ctx context.Context, message string, severity pipeline.Severity) error {
	switch severity {
	case pipeline.SeverityError:
		color.New(color.FgRed).Fprintf(h.out, "! %s\n", message)
	case pipeline.SeverityWarning:
		color.New(color.FgYellow).Fprintf(h.out, "~ %s\n", message)
	default:
		fmt.Fprintf(h.out, "%s\n", message)
	}
	return nil
}

// readLine reads one line from the input, honoring ctx while blocked. A
// single background reader feeds all calls so no buffered input is lost
// between the decision and the feedback prompt.
func (h *ConsoleApprovalHook) readLine(ctx context.Context) (string, error) {
	h.once.Do(func() {
		h.lines = make(chan lineResult)
		go func() {
			scanner := bufio.NewScanner(h.in)
			for scanner.Scan() {
				h.lines <- lineResult{text: scanner.Text()}
			}
			if err := scanner.Err(); err != nil {
				h.lines <- lineResult{err: err}
			}
			close(h.lines)
		}()
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case result, ok := <-h.lines:
		if !ok {
			return "", io.EOF
		}
		return result.text, result.err
	}
}

func printArtifacts(out io.Writer, artifacts map[string]any) {
	if len(artifacts) == 0 {
		return
	}
	keys := make([]string, 0, len(artifacts))
	for key := range artifacts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	fmt.Fprintf(out, "  artifacts:\n")
	for _, key := range keys {
		fmt.Fprintf(out, "    %s: %s\n", key, summarizeValue(artifacts[key]))
	}
}

func summarizeValue(value any) string {
	text := fmt.Sprintf("%v", value)
	if len(text) > 120 {
		text = text[:117] + "..."
	}
	return text
}
