package metrics

import "time"

// NewNoop returns a Recorder that discards everything. Components fall back
// to it when no recorder is configured.
func NewNoop() Recorder { return discard{} }

type discard struct{}

func (discard) IncRedirect(string)                          {}
func (discard) IncRedirectCacheHit()                        {}
func (discard) IncRedirectCacheMiss()                       {}
func (discard) ObserveRedirectDuration(time.Duration)       {}
func (discard) IncDeviceCache(bool)                         {}
func (discard) IncGeoLookup(string)                         {}
func (discard) IncAnalyticsWrite(string)                    {}
func (discard) IncAnalyticsEventProcessed(string)           {}
func (discard) ObserveAnalyticsBatchSize(int)               {}
func (discard) ObserveAnalyticsBatchDuration(time.Duration) {}
func (discard) SetAnalyticsQueueDepth(int64)                {}
func (discard) ObserveAnalyticsIngestLag(time.Duration)     {}
func (discard) AddRetentionPurged(int64)                    {}
func (discard) IncEventSinkPush(string)                     {}
