package hooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deepnoodle-ai/pipeline"
	"github.com/stretchr/testify/require"
)

func TestNtfyHookRequiresTopic(t *testing.T) {
	_, err := NewNtfyHook(NtfyHookOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "topic is required")
}

func TestNtfyHookPublishes(t *testing.T) {
	type push struct {
		body     string
		title    string
		tags     string
		priority string
	}
	var pushes []push

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, ntfyUserAgent, r.Header.Get("User-Agent"))
		pushes = append(pushes, push{
			body:     string(body),
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
	}))
	defer server.Close()

	hook, err := NewNtfyHook(NtfyHookOptions{Topic: server.URL, Client: server.Client()})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, hook.SendNotification(ctx, "workflow run_a completed", pipeline.SeverityInfo))
	require.NoError(t, hook.SendNotification(ctx, "workflow run_b failed in build", pipeline.SeverityError))

	require.Len(t, pushes, 2)
	require.Equal(t, "workflow run_a completed", pushes[0].body)
	require.Equal(t, "Pipeline", pushes[0].title)
	require.Equal(t, "pipeline,info", pushes[0].tags)
	require.Empty(t, pushes[0].priority)

	require.Equal(t, "Pipeline - Failed", pushes[1].title)
	require.Equal(t, "pipeline,error", pushes[1].tags)
	require.Equal(t, "high", pushes[1].priority)
}

func TestNtfyHookRetriesServerErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}))
	defer server.Close()

	hook, err := NewNtfyHook(NtfyHookOptions{Topic: server.URL, Client: server.Client()})
	require.NoError(t, err)

	require.NoError(t, hook.SendNotification(context.Background(), "flaky delivery", pipeline.SeverityInfo))
	require.Equal(t, 2, calls)
}

func TestNtfyHookDoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "no such topic", http.StatusNotFound)
	}))
	defer server.Close()

	hook, err := NewNtfyHook(NtfyHookOptions{Topic: server.URL, Client: server.Client()})
	require.NoError(t, err)

	err = hook.SendNotification(context.Background(), "dead letter", pipeline.SeverityWarning)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ntfy returned 404")
	require.Equal(t, 1, calls)
}

func TestNtfyHookDeclinesApprovalRequests(t *testing.T) {
	hook, err := NewNtfyHook(NtfyHookOptions{Topic: "my-alerts"})
	require.NoError(t, err)

	_, err = hook.RequestApproval(context.Background(), &pipeline.ApprovalRequest{Gate: pipeline.GateConcept})
	require.ErrorIs(t, err, pipeline.ErrApprovalUnsupported)
}
