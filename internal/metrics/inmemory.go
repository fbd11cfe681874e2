package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Redirects               map[string]uint64
	RedirectCacheHits       uint64
	RedirectCacheMisses     uint64
	RedirectDurationCount   uint64
	RedirectDurationTotalNs int64
	DeviceCacheHits         uint64
	DeviceCacheMisses       uint64
	GeoLookups              map[string]uint64
	AnalyticsWrites         map[string]uint64
	AnalyticsProcessed      map[string]uint64
	AnalyticsQueueDepth     int64
	RetentionPurged         int64
	EventSinkPushes         map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	redirectCacheHits       uint64
	redirectCacheMisses     uint64
	redirectDurationCount   uint64
	redirectDurationTotalNs int64
	deviceCacheHits         uint64
	deviceCacheMisses       uint64
	queueDepth              int64
	retentionPurged         int64

	mu       sync.Mutex
	labelled map[string]map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{labelled: make(map[string]map[string]uint64)}
}

func (m *InMemoryRecorder) inc(family, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts, ok := m.labelled[family]
	if !ok {
		counts = make(map[string]uint64)
		m.labelled[family] = counts
	}
	counts[label]++
}

func (m *InMemoryRecorder) copyFamily(family string) map[string]uint64 {
	out := make(map[string]uint64, len(m.labelled[family]))
	for k, v := range m.labelled[family] {
		out[k] = v
	}
	return out
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Redirects:               m.copyFamily("redirects"),
		RedirectCacheHits:       atomic.LoadUint64(&m.redirectCacheHits),
		RedirectCacheMisses:     atomic.LoadUint64(&m.redirectCacheMisses),
		RedirectDurationCount:   atomic.LoadUint64(&m.redirectDurationCount),
		RedirectDurationTotalNs: atomic.LoadInt64(&m.redirectDurationTotalNs),
		DeviceCacheHits:         atomic.LoadUint64(&m.deviceCacheHits),
		DeviceCacheMisses:       atomic.LoadUint64(&m.deviceCacheMisses),
		GeoLookups:              m.copyFamily("geo"),
		AnalyticsWrites:         m.copyFamily("writes"),
		AnalyticsProcessed:      m.copyFamily("processed"),
		AnalyticsQueueDepth:     atomic.LoadInt64(&m.queueDepth),
		RetentionPurged:         atomic.LoadInt64(&m.retentionPurged),
		EventSinkPushes:         m.copyFamily("sink"),
	}
}

// IncRedirect counts a redirect by outcome.
func (m *InMemoryRecorder) IncRedirect(outcome string) {
	m.inc("redirects", outcome)
}

// IncRedirectCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncRedirectCacheHit() {
	atomic.AddUint64(&m.redirectCacheHits, 1)
}

// IncRedirectCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncRedirectCacheMiss() {
	atomic.AddUint64(&m.redirectCacheMisses, 1)
}

// ObserveRedirectDuration records redirect duration.
func (m *InMemoryRecorder) ObserveRedirectDuration(duration time.Duration) {
	atomic.AddUint64(&m.redirectDurationCount, 1)
	atomic.AddInt64(&m.redirectDurationTotalNs, duration.Nanoseconds())
}

// IncDeviceCache counts device detection cache lookups.
func (m *InMemoryRecorder) IncDeviceCache(hit bool) {
	if hit {
		atomic.AddUint64(&m.deviceCacheHits, 1)
		return
	}
	atomic.AddUint64(&m.deviceCacheMisses, 1)
}

// IncGeoLookup counts geolocation lookups by result.
func (m *InMemoryRecorder) IncGeoLookup(result string) {
	m.inc("geo", result)
}

// IncAnalyticsWrite counts analytics writes by status.
func (m *InMemoryRecorder) IncAnalyticsWrite(status string) {
	m.inc("writes", status)
}

// IncAnalyticsEventProcessed counts stream worker results by status.
func (m *InMemoryRecorder) IncAnalyticsEventProcessed(status string) {
	m.inc("processed", status)
}

// ObserveAnalyticsBatchSize is not tracked in memory.
func (m *InMemoryRecorder) ObserveAnalyticsBatchSize(size int) {}

// ObserveAnalyticsBatchDuration is not tracked in memory.
func (m *InMemoryRecorder) ObserveAnalyticsBatchDuration(duration time.Duration) {}

// SetAnalyticsQueueDepth stores the last reported stream depth.
func (m *InMemoryRecorder) SetAnalyticsQueueDepth(depth int64) {
	atomic.StoreInt64(&m.queueDepth, depth)
}

// ObserveAnalyticsIngestLag is not tracked in memory.
func (m *InMemoryRecorder) ObserveAnalyticsIngestLag(lag time.Duration) {}

// AddRetentionPurged adds purged analytics rows.
func (m *InMemoryRecorder) AddRetentionPurged(rows int64) {
	atomic.AddInt64(&m.retentionPurged, rows)
}

// IncEventSinkPush counts event sink pushes by status.
func (m *InMemoryRecorder) IncEventSinkPush(status string) {
	m.inc("sink", status)
}
