package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "umda_jobs_started_total",
		Help: "Number of optimization jobs accepted.",
	})

	jobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "umda_jobs_finished_total",
		Help: "Number of optimization jobs finished, by terminal status.",
	}, []string{"status"})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "umda_job_duration_seconds",
		Help:    "Wall-clock duration of completed optimization jobs.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	objectiveEvaluations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "umda_objective_evaluations_total",
		Help: "Objective function evaluations charged to completed jobs.",
	})
)
