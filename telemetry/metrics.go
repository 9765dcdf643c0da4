// Package telemetry provides Prometheus metrics, tracing setup and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// CommandsTotal counts handled chat commands by command and outcome.
	CommandsTotal *prometheus.CounterVec
	// MediaCleanupFailures counts best-effort media deletions that failed.
	MediaCleanupFailures prometheus.Counter
	// StoreConflicts counts writes rejected because the remote document moved.
	StoreConflicts prometheus.Counter

	// StoreDuration observes document store calls (seconds) by op.
	StoreDuration *prometheus.HistogramVec
	// MediaDuration observes media host calls (seconds) by op.
	MediaDuration *prometheus.HistogramVec

	// ListSizeGauge is the entry count seen on the latest read.
	ListSizeGauge prometheus.Gauge
	// ChatConnectedGauge is 1 per connected chat platform.
	ChatConnectedGauge *prometheus.GaugeVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "meme_commands_total", Help: "Chat commands handled"}, []string{"command", "outcome"})
		MediaCleanupFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "meme_media_cleanup_failures_total", Help: "Best-effort media deletions that failed"})
		StoreConflicts = promauto.NewCounter(prometheus.CounterOpts{Name: "meme_store_conflicts_total", Help: "Document writes rejected due to a concurrent change"})
		StoreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "meme_store_duration_seconds", Help: "Document store call duration seconds", Buckets: prometheus.DefBuckets}, []string{"op"})
		MediaDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "meme_media_duration_seconds", Help: "Media host call duration seconds", Buckets: prometheus.DefBuckets}, []string{"op"})
		ListSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "meme_list_size", Help: "Entries in the rotation list at last read"})
		ChatConnectedGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "meme_chat_connected", Help: "Chat platform connection state (1=connected)"}, []string{"platform"})
	})
}

// CountCommand increments the command counter if metrics are initialized.
func CountCommand(command, outcome string) {
	if CommandsTotal != nil {
		CommandsTotal.WithLabelValues(command, outcome).Inc()
	}
}

// CountCleanupFailure records a failed best-effort media deletion.
func CountCleanupFailure() {
	if MediaCleanupFailures != nil {
		MediaCleanupFailures.Inc()
	}
}

// CountConflict records a rejected document write.
func CountConflict() {
	if StoreConflicts != nil {
		StoreConflicts.Inc()
	}
}

// SetListSize records the latest observed list length.
func SetListSize(n int) {
	if ListSizeGauge != nil {
		ListSizeGauge.Set(float64(n))
	}
}

// SetChatConnected flips the connection gauge for platform.
func SetChatConnected(platform string, connected bool) {
	if ChatConnectedGauge == nil {
		return
	}
	if connected {
		ChatConnectedGauge.WithLabelValues(platform).Set(1)
	} else {
		ChatConnectedGauge.WithLabelValues(platform).Set(0)
	}
}

// Observe returns a func that records the elapsed time under op when called.
// A nil vec is allowed so packages work before Init.
func Observe(vec *prometheus.HistogramVec, op string) func() {
	start := time.Now()
	return func() {
		if vec != nil {
			vec.WithLabelValues(op).Observe(time.Since(start).Seconds())
		}
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
