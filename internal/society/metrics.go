package society

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pairChecks counts pair visits by scanner.
	// Labels: scanner (meeting, reinforce)
	pairChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nuka_bonds",
		Subsystem: "scan",
		Name:      "pair_checks_total",
		Help:      "Pair checks performed by the amortized scanners",
	}, []string{"scanner"})

	// scanSweeps counts completed round-robin sweeps by scanner.
	scanSweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nuka_bonds",
		Subsystem: "scan",
		Name:      "sweeps_total",
		Help:      "Cursor wraparounds by scanner",
	}, []string{"scanner"})

	// relationsCreated counts new relation pairs by origin.
	// Labels: origin (meeting, request)
	relationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nuka_bonds",
		Subsystem: "ledger",
		Name:      "relations_created_total",
		Help:      "Relation pairs created",
	}, []string{"origin"})

	// requestsProcessed counts drained requests by outcome.
	// Labels: outcome (applied, dropped)
	requestsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nuka_bonds",
		Subsystem: "requests",
		Name:      "processed_total",
		Help:      "Modification requests drained from the queue",
	}, []string{"outcome"})

	reinforcements = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nuka_bonds",
		Subsystem: "reinforce",
		Name:      "pairs_total",
		Help:      "Pairs reinforced by observed cooperation",
	})

	// skippedTicks counts ticks the engine ignored.
	// Labels: reason (paused, replay)
	skippedTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nuka_bonds",
		Subsystem: "engine",
		Name:      "skipped_ticks_total",
		Help:      "Ticks skipped because the simulation was paused or replaying",
	}, []string{"reason"})

	// stageDuration measures each pipeline stage.
	// Labels: stage (meeting, requests, reinforce)
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nuka_bonds",
		Subsystem: "engine",
		Name:      "stage_duration_seconds",
		Help:      "Time spent in each tick stage",
		Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	}, []string{"stage"})

	ledgerSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nuka_bonds",
		Subsystem: "ledger",
		Name:      "records",
		Help:      "Directed relation records currently held",
	})
)
