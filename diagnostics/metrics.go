package diagnostics

import "time"

// RuntimeMetrics is the subset of GetDiagnosticsRequest's response that
// isn't the crash log itself.
type RuntimeMetrics struct {
	UptimeSecs    uint64
	FreeHeapBytes uint64
	CrashCount    int
}

// Collector gathers RuntimeMetrics at boot time plus a live free-memory
// probe supplied by the platform.
type Collector struct {
	bootTime     time.Time
	freeHeapFunc func() uint64
}

// NewCollector constructs a Collector whose uptime is measured from now
// and whose free-heap figure comes from freeHeapFunc each call.
func NewCollector(freeHeapFunc func() uint64) *Collector {
	return &Collector{bootTime: time.Now(), freeHeapFunc: freeHeapFunc}
}

// Collect returns the current RuntimeMetrics, combined with ring's live
// crash count.
func (c *Collector) Collect(ring *CrashRing) RuntimeMetrics {
	var free uint64
	if c.freeHeapFunc != nil {
		free = c.freeHeapFunc()
	}
	return RuntimeMetrics{
		UptimeSecs:    uint64(time.Since(c.bootTime).Seconds()),
		FreeHeapBytes: free,
		CrashCount:    ring.Count(),
	}
}
