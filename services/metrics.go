package services

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Dosada05/rps-tournament-bot/models"
)

// Metrics receives engine counters. The zero implementation is NopMetrics.
type Metrics interface {
	CommandHandled(command string, err error, elapsed time.Duration)
	MatchFinalized(method models.ResultMethod)
	ActiveTournaments(n int)
}

type NopMetrics struct{}

func (NopMetrics) CommandHandled(string, error, time.Duration) {}
func (NopMetrics) MatchFinalized(models.ResultMethod)           {}
func (NopMetrics) ActiveTournaments(int)                        {}

type prometheusMetrics struct {
	commands  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	finalized *prometheus.CounterVec
	active    prometheus.Gauge
}

// NewPrometheusMetrics registers the engine collectors on registry.
func NewPrometheusMetrics(registry prometheus.Registerer) Metrics {
	m := &prometheusMetrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rps",
			Subsystem: "engine",
			Name:      "commands_total",
			Help:      "Commands handled by tournament workers, by outcome.",
		}, []string{"command", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rps",
			Subsystem: "engine",
			Name:      "command_duration_seconds",
			Help:      "Time spent handling a command inside its worker.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rps",
			Subsystem: "engine",
			Name:      "matches_finalized_total",
			Help:      "Finalized matches by result method.",
		}, []string{"method"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rps",
			Subsystem: "engine",
			Name:      "active_tournaments",
			Help:      "Tournaments that are not completed or cancelled.",
		}),
	}
	registry.MustRegister(m.commands, m.duration, m.finalized, m.active)
	return m
}

func (m *prometheusMetrics) CommandHandled(command string, err error, elapsed time.Duration) {
	m.commands.WithLabelValues(command, outcomeLabel(err)).Inc()
	m.duration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (m *prometheusMetrics) MatchFinalized(method models.ResultMethod) {
	m.finalized.WithLabelValues(string(method)).Inc()
}

func (m *prometheusMetrics) ActiveTournaments(n int) {
	m.active.Set(float64(n))
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrStateConflict):
		return "state_conflict"
	case errors.Is(err, models.ErrCapacity):
		return "capacity"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrPermission):
		return "permission"
	case errors.Is(err, models.ErrPersistence):
		return "persistence"
	case errors.Is(err, models.ErrFault):
		return "fault"
	}
	return "error"
}
