// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Redirect outcomes.
const (
	OutcomeRedirect = "redirect"
	OutcomeNotFound = "not_found"
	OutcomeLanding  = "landing"
	OutcomeBot      = "bot"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Redirect metrics
	IncRedirect(outcome string)
	IncRedirectCacheHit()
	IncRedirectCacheMiss()
	ObserveRedirectDuration(duration time.Duration)

	// Enrichment metrics
	IncDeviceCache(hit bool)
	IncGeoLookup(result string) // result: "success", "fallback", "cached", "failed", "skipped"

	// Analytics pipeline metrics
	IncAnalyticsWrite(status string)          // status: "success", "failed"
	IncAnalyticsEventProcessed(status string) // status: "success", "failed", "dead_lettered"
	ObserveAnalyticsBatchSize(size int)
	ObserveAnalyticsBatchDuration(duration time.Duration)
	SetAnalyticsQueueDepth(depth int64)
	ObserveAnalyticsIngestLag(lag time.Duration)

	// Retention and outbound events
	AddRetentionPurged(rows int64)
	IncEventSinkPush(status string) // status: "success", "failed"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
