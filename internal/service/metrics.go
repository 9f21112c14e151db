package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	judgedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arena",
		Subsystem: "judge",
		Name:      "batches_total",
		Help:      "Judged submission batches by outcome.",
	}, []string{"outcome"})

	judgeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "arena",
		Subsystem: "judge",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of one sandbox batch including admission wait.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	contestsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arena",
		Subsystem: "contest",
		Name:      "finished_total",
		Help:      "Finished contests by trigger.",
	}, []string{"trigger"})
)

const (
	outcomeAccepted = "accepted"
	outcomeRejected = "rejected"
	outcomeError    = "error"

	triggerHost    = "host"
	triggerExpired = "expired"
)

func outcomeOf(fullyAccepted bool) string {
	if fullyAccepted {
		return outcomeAccepted
	}
	return outcomeRejected
}
