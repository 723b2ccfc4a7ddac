// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	IngestionsTotal     = expvar.NewInt("ingestions_total")
	IngestionsFailed    = expvar.NewInt("ingestions_failed")
	EnvelopesFailed     = expvar.NewInt("envelopes_failed")
	ReconcileApplied    = expvar.NewInt("reconcile_applied")
	ReconcileDuplicate  = expvar.NewInt("reconcile_duplicate")
	ReconcileIgnored    = expvar.NewInt("reconcile_ignored")
	ReconcileConflicts  = expvar.NewInt("reconcile_conflicts")
	ReconcileNotFound   = expvar.NewInt("reconcile_not_found")
	CASRetries          = expvar.NewInt("cas_retries")
	NotificationsSent   = expvar.NewInt("notifications_sent")
	NotificationsFailed = expvar.NewInt("notifications_failed")
	DeadLettered        = expvar.NewInt("dead_lettered")
	FollowupsScheduled  = expvar.NewInt("followups_scheduled")
	SweepBackfilled     = expvar.NewInt("sweep_backfilled")
	SweepRecovered      = expvar.NewInt("sweep_recovered")
	InvalidSignatures   = expvar.NewInt("invalid_signatures")
)
