package hooks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deepnoodle-ai/pipeline"
	"github.com/deepnoodle-ai/pipeline/retry"
)

const ntfyUserAgent = "pipeline/0.1.0"

// NtfyHook pushes run notifications to an ntfy topic. It is
// notification-only: approval requests are declined so gates fall through
// to hooks that can actually collect a decision.
type NtfyHook struct {
	endpoint string
	client   *http.Client
}

// NtfyHookOptions configures an NtfyHook.
type NtfyHookOptions struct {
	// Topic is the full ntfy topic URL, e.g. https://ntfy.sh/my-pipeline.
	// Bare topic names are resolved against ntfy.sh.
	Topic string

	// Timeout bounds each push. Zero selects ten seconds.
	Timeout time.Duration

	// Client overrides the HTTP client. Nil builds one from Timeout.
	Client *http.Client
}

// NewNtfyHook creates a hook pushing to the given topic.
func NewNtfyHook(opts NtfyHookOptions) (*NtfyHook, error) {
	topic := strings.TrimSpace(opts.Topic)
	if topic == "" {
		return nil, fmt.Errorf("ntfy topic is required")
	}
	if !strings.Contains(topic, "://") {
		topic = "https://ntfy.sh/" + topic
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &NtfyHook{endpoint: topic, client: client}, nil
}

// RequestApproval always declines: ntfy delivery is one-way.
func (h *NtfyHook) RequestApproval(ctx context.Context, request *pipeline.ApprovalRequest) (*pipeline.ApprovalResponse, error) {
	return nil, pipeline.ErrApprovalUnsupported
}

// SendNotification pushes the message, retrying transient delivery
// failures.
func (h *NtfyHook) SendNotification(ctx context.Context, message string, severity pipeline.Severity) error {
	return retry.Do(ctx, func() error {
		return h.publish(ctx, message, severity)
	}, retry.WithMaxRetries(2), retry.WithBaseWait(500*time.Millisecond))
}

func (h *NtfyHook) publish(ctx context.Context, message string, severity pipeline.Severity) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, strings.NewReader(message))
	if err != nil {
		return retry.NewNonRecoverableError(fmt.Errorf("build ntfy request: %w", err))
	}
	req.Header.Set("User-Agent", ntfyUserAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", ntfyTitle(severity))
	req.Header.Set("Tags", "pipeline,"+string(severity))
	if priority := ntfyPriority(severity); priority != "" {
		req.Header.Set("Priority", priority)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return retry.NewRecoverableError(err)
		}
		return retry.NewNonRecoverableError(err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func ntfyTitle(severity pipeline.Severity) string {
	switch severity {
	case pipeline.SeverityError:
		return "Pipeline - Failed"
	case pipeline.SeverityWarning:
		return "Pipeline - Attention"
	default:
		return "Pipeline"
	}
}

func ntfyPriority(severity pipeline.Severity) string {
	switch severity {
	case pipeline.SeverityError:
		return "high"
	case pipeline.SeverityWarning:
		return "high"
	default:
		return ""
	}
}
