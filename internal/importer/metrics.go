package importer

import "github.com/prometheus/client_golang/prometheus"

var (
	// previewedCandidates counts candidates classified by a preview, by status.
	previewedCandidates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipe_import_candidates_total",
			Help: "Import candidates classified during preview, by status.",
		},
		[]string{"status"},
	)

	// appliedRecords counts apply outcomes (inserted/updated/skipped/stale).
	appliedRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipe_import_records_total",
			Help: "Records processed by import apply, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(previewedCandidates, appliedRecords)
}
