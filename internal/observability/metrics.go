package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "colloquy"

type moduleMetrics struct {
	runTotal      *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	permitWait    prometheus.Histogram
	runIterations prometheus.Histogram

	modelTurnTotal    *prometheus.CounterVec
	modelTurnDuration *prometheus.HistogramVec
	promptTokens      prometheus.Histogram

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	artifactChangesTotal prometheus.Counter
	blueprintReloads     prometheus.Counter

	transcriptLoadDuration prometheus.Histogram
	transcriptSaveDuration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			runTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "session_runs_total",
					Help:      "Session runs by outcome.",
				},
				[]string{"status"},
			),
			runDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "session_run_duration_seconds",
					Help:      "Session run duration in seconds by outcome.",
					Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
				},
				[]string{"status"},
			),
			permitWait: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "session_permit_wait_seconds",
					Help:      "Time spent waiting for the single-flight session permit.",
					Buckets:   prometheus.DefBuckets,
				},
			),
			runIterations: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "session_run_iterations",
					Help:      "Model turns per session run.",
					Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
				},
			),
			modelTurnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "model_turns_total",
					Help:      "Model streaming calls by provider and outcome.",
				},
				[]string{"provider", "status"},
			),
			modelTurnDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "model_turn_duration_seconds",
					Help:      "Model streaming call duration in seconds by provider.",
					Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
				},
				[]string{"provider"},
			),
			promptTokens: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "prompt_estimated_tokens",
					Help:      "Estimated prompt size per model turn.",
					Buckets:   prometheus.ExponentialBuckets(256, 2, 10),
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "tool_execution_total",
					Help:      "Tool executions by tool and outcome.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "tool_execution_duration_seconds",
					Help:      "Tool execution duration in seconds by tool.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "tool_errors_total",
					Help:      "Tool executions that produced an error result.",
				},
				[]string{"tool"},
			),
			artifactChangesTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "artifact_changes_reported_total",
					Help:      "Changed artifacts reported to the model in user prompts.",
				},
			),
			blueprintReloads: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "blueprint_reloads_total",
					Help:      "Blueprint files reloaded by the library watcher.",
				},
			),
			transcriptLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "transcript_load_duration_seconds",
					Help:      "Transcript load duration in seconds.",
					Buckets:   prometheus.DefBuckets,
				},
			),
			transcriptSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "transcript_save_duration_seconds",
					Help:      "Transcript append duration in seconds.",
					Buckets:   prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.runTotal,
			m.runDuration,
			m.permitWait,
			m.runIterations,
			m.modelTurnTotal,
			m.modelTurnDuration,
			m.promptTokens,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.artifactChangesTotal,
			m.blueprintReloads,
			m.transcriptLoadDuration,
			m.transcriptSaveDuration,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordRun(duration time.Duration, iterations int, success bool) {
	m := getMetrics()
	status := statusLabel(success)
	m.runTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.runIterations.Observe(float64(iterations))
}

func RecordPermitWait(duration time.Duration) {
	getMetrics().permitWait.Observe(duration.Seconds())
}

func RecordModelTurn(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.modelTurnTotal.WithLabelValues(provider, statusLabel(success)).Inc()
	m.modelTurnDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func ObservePromptTokens(estimate int) {
	getMetrics().promptTokens.Observe(float64(estimate))
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

func RecordArtifactChanges(count int) {
	getMetrics().artifactChangesTotal.Add(float64(count))
}

func RecordBlueprintReload() {
	getMetrics().blueprintReloads.Inc()
}

func RecordTranscriptLoad(duration time.Duration) {
	getMetrics().transcriptLoadDuration.Observe(duration.Seconds())
}

func RecordTranscriptSave(duration time.Duration) {
	getMetrics().transcriptSaveDuration.Observe(duration.Seconds())
}
