package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage labels observed by the turn pipeline.
const (
	StageAssemble     = "assemble"
	StageModel        = "model"
	StagePersist      = "persist"
	StageMemoryRecord = "memory_record"
	StageTurnTotal    = "turn_total"
)

// Metrics groups all Prometheus instruments used by the service, plus a
// short rolling latency window for the debug endpoint.
type Metrics struct {
	ActiveConversations prometheus.Gauge
	TurnOutcomes        *prometheus.CounterVec
	StorageEvents       *prometheus.CounterVec
	MemoryEvents        *prometheus.CounterVec
	WSMessages          *prometheus.CounterVec
	ModelLatency        prometheus.Histogram

	turnStages *turnStageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveConversations: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_conversations",
			Help:      "Number of hydrated per-user conversations.",
		}),
		TurnOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_outcomes_total",
			Help:      "Submitted turns by terminal outcome.",
		}, []string{"outcome"}),
		StorageEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_events_total",
			Help:      "Persistence backend events by type.",
		}, []string{"event"}),
		MemoryEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_events_total",
			Help:      "Semantic memory events by type.",
		}, []string{"event"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ModelLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_latency_ms",
			Help:      "Latency of the blocking model call in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}),
		turnStages: newTurnStageWindow(256),
	}
}

func (m *Metrics) ObserveModelLatency(d time.Duration) {
	m.ModelLatency.Observe(float64(d.Milliseconds()))
	m.ObserveTurnStage(StageModel, d)
}

// ObserveTurnStage records one stage latency sample in the rolling window.
func (m *Metrics) ObserveTurnStage(stage string, d time.Duration) {
	if m == nil || m.turnStages == nil {
		return
	}
	m.turnStages.Observe(stage, float64(d.Microseconds())/1000.0)
}

// SnapshotTurnStages reports recent per-stage latency percentiles.
func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	if m == nil || m.turnStages == nil {
		return TurnStageSnapshot{GeneratedAt: time.Now().UTC()}
	}
	return m.turnStages.Snapshot()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
