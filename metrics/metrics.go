// Package metrics exposes prometheus collectors for server lifecycle events.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gamemango"

type Metrics struct {
	instanceOperations *prometheus.CounterVec
	probeDuration      *prometheus.HistogramVec
	probeFailures      *prometheus.CounterVec
	playersOnline      *prometheus.GaugeVec
	idleShutdowns      *prometheus.CounterVec
	watchOutcomes      *prometheus.CounterVec
}

func New(registerer prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		instanceOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instance_operations_total",
				Help:      "Instance start and stop commands by result",
			},
			[]string{"server", "operation", "result"},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Duration of occupancy probes",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"server"},
		),
		probeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probe_failures_total",
				Help:      "Failed occupancy probes by error code",
			},
			[]string{"server", "code"},
		),
		playersOnline: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "players_online",
				Help:      "Players online at the last successful probe",
			},
			[]string{"server"},
		),
		idleShutdowns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idle_shutdowns_total",
				Help:      "Servers closed by the idle check",
			},
			[]string{"server"},
		),
		watchOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "watch_outcomes_total",
				Help:      "Finished start-up watches by outcome",
			},
			[]string{"server", "outcome"},
		),
	}
	registerer.MustRegister(
		metrics.instanceOperations,
		metrics.probeDuration,
		metrics.probeFailures,
		metrics.playersOnline,
		metrics.idleShutdowns,
		metrics.watchOutcomes,
	)
	return metrics
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (metrics *Metrics) InstanceOperation(server, operation string, err error) {
	if metrics == nil {
		return
	}
	metrics.instanceOperations.WithLabelValues(server, operation, result(err)).Inc()
}

func (metrics *Metrics) Probe(server string, took time.Duration, online int) {
	if metrics == nil {
		return
	}
	metrics.probeDuration.WithLabelValues(server).Observe(took.Seconds())
	metrics.playersOnline.WithLabelValues(server).Set(float64(online))
}

func (metrics *Metrics) ProbeFailure(server, code string) {
	if metrics == nil {
		return
	}
	metrics.probeFailures.WithLabelValues(server, code).Inc()
}

func (metrics *Metrics) IdleShutdown(server string) {
	if metrics == nil {
		return
	}
	metrics.idleShutdowns.WithLabelValues(server).Inc()
}

func (metrics *Metrics) WatchOutcome(server, outcome string) {
	if metrics == nil {
		return
	}
	metrics.watchOutcomes.WithLabelValues(server, outcome).Inc()
}
