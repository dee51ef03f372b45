// Package metrics exposes the engine's runtime counters and
// histograms as a small Prometheus registry, and rate-limits the noisy
// classes of log line (repeated internal-assertion repairs) that a
// pathological frame could otherwise flood a logger with.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Registry holds every counter/histogram the task graph and physics
// pipeline report against. Construct one per Simulation; register it
// with a prometheus.Registerer of the caller's choosing (an HTTP
// handler is out of scope for the engine itself).
type Registry struct {
	TasksExecuted        prometheus.Counter
	TaskDuration         prometheus.Histogram
	StepDuration         prometheus.Histogram
	ConstraintIterations prometheus.Counter
	IslandsSolved        prometheus.Counter
	PairsGained          prometheus.Counter
	PairsLost            prometheus.Counter
	SolverMaxDelta       prometheus.Histogram

	assertionLimiter *rate.Limiter
}

// NewRegistry constructs a fresh, unregistered set of collectors.
func NewRegistry() *Registry {
	return &Registry{
		TasksExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dof_tasks_executed_total",
			Help: "Number of task-graph callbacks invoked.",
		}),
		TaskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dof_task_duration_seconds",
			Help:    "Wall-clock duration of a task-graph node's callback, across all of its batches.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dof_physics_step_duration_seconds",
			Help:    "Wall-clock duration of one Simulation.Step call, independent of the simulated frame dt.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
		ConstraintIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dof_solver_constraint_iterations_total",
			Help: "Number of PGS constraint relaxation passes performed.",
		}),
		IslandsSolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dof_solver_islands_solved_total",
			Help: "Number of islands run through the constraint solver.",
		}),
		PairsGained: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dof_broadphase_pairs_gained_total",
			Help: "Number of broadphase pairs gained.",
		}),
		PairsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dof_broadphase_pairs_lost_total",
			Help: "Number of broadphase pairs lost.",
		}),
		SolverMaxDelta: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dof_solver_max_delta",
			Help:    "Per-iteration max lambda delta reported by the PGS solver.",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
		// One internal-assertion log line per 2 seconds, bursts of 1 —
		// a single misbehaving frame should not flood the logger.
		assertionLimiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// MustRegister registers every collector with reg.
func (m *Registry) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.TasksExecuted,
		m.TaskDuration,
		m.StepDuration,
		m.ConstraintIterations,
		m.IslandsSolved,
		m.PairsGained,
		m.PairsLost,
		m.SolverMaxDelta,
	)
}

// AllowAssertionLog reports whether an InternalAssertion repair should
// be logged right now, or silently suppressed because one was already
// logged too recently.
func (m *Registry) AllowAssertionLog() bool {
	return m.assertionLimiter.Allow()
}
