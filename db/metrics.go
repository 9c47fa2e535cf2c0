package db

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orpheusplus_commits_total",
		Help: "Versions created by commits",
	}, []string{"table"})

	checkoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orpheusplus_checkouts_total",
		Help: "Checkouts of a version into a workspace",
	}, []string{"table"})

	mergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orpheusplus_merges_total",
		Help: "Merges by outcome",
	}, []string{"table", "outcome"})

	conflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orpheusplus_merge_conflicts_total",
		Help: "Conflicting rows reported by merges",
	}, []string{"table"})

	stagedRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "orpheusplus_staged_rows",
		Help: "Rows added plus rows removed by the staged operations of a workspace",
	}, []string{"table", "user"})

	statementDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orpheusplus_statement_duration_seconds",
		Help:    "Duration of executed statements",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"operation"})
)
