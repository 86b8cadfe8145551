package hooks

import (
	"context"
	"sync"
	"time"

	"github.com/deepnoodle-ai/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsHook records phase activity as Prometheus metrics: executions
// started, completed, failed, and wall-clock duration per phase.
type MetricsHook struct {
	phasesStarted   *prometheus.CounterVec
	phasesCompleted *prometheus.CounterVec
	phaseErrors     *prometheus.CounterVec
	phaseDuration   *prometheus.HistogramVec

	mutex   sync.Mutex
	started map[string]time.Time
}

// NewMetricsHook registers the pipeline metrics with reg. Nil uses the
// default registerer.
func NewMetricsHook(reg prometheus.Registerer) *MetricsHook {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &MetricsHook{
		phasesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "phases_started_total",
			Help:      "Phase executions started, including retries.",
		}, []string{"phase"}),
		phasesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "phases_completed_total",
			Help:      "Phase executions that completed successfully.",
		}, []string{"phase"}),
		phaseErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipeline",
			Name:      "phase_errors_total",
			Help:      "Phase executions that failed, by error kind.",
		}, []string{"phase", "kind"}),
		phaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pipeline",
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of phase executions.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 13),
		}, []string{"phase"}),
		started: map[string]time.Time{},
	}
}

func (h *MetricsHook) OnPhaseStart(ctx context.Context, phase pipeline.Phase, state *pipeline.WorkflowState) error {
	h.mutex.Lock()
	h.started[h.key(state.ID, phase)] = time.Now()
	h.mutex.Unlock()
	h.phasesStarted.WithLabelValues(phase.String()).Inc()
	return nil
}

func (h *MetricsHook) OnPhaseComplete(ctx context.Context, phase pipeline.Phase, state *pipeline.WorkflowState, result *pipeline.PhaseResult) error {
	h.observeDuration(state.ID, phase)
	h.phasesCompleted.WithLabelValues(phase.String()).Inc()
	return nil
}

func (h *MetricsHook) OnError(ctx context.Context, phase pipeline.Phase, state *pipeline.WorkflowState, err error) error {
	h.observeDuration(state.ID, phase)
	h.phaseErrors.WithLabelValues(phase.String(), pipeline.ErrorKind(err)).Inc()
	return nil
}

func (h *MetricsHook) observeDuration(workflowID string, phase pipeline.Phase) {
	h.mutex.Lock()
	startedAt, ok := h.started[h.key(workflowID, phase)]
	if ok {
		delete(h.started, h.key(workflowID, phase))
	}
	h.mutex.Unlock()
	if ok {
		h.phaseDuration.WithLabelValues(phase.String()).Observe(time.Since(startedAt).Seconds())
	}
}

func (h *MetricsHook) key(workflowID string, phase pipeline.Phase) string {
	return workflowID + "/" + phase.String()
}
