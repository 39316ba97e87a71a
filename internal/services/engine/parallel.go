package engine

import (
	"runtime"
	"sync"
	"time"
)

// heapProbe caches one process-wide heap utilization reading. Every request
// reads the same shared probe rather than deriving its own view — adaptive
// parallelism reacts to process memory pressure, not per-request state.
var heapProbe struct {
	mu      sync.Mutex
	at      time.Time
	heapPct float64
}

const heapProbeInterval = 500 * time.Millisecond

// heapUtilization returns live heap as a percentage of the heap the runtime
// holds from the OS, refreshed at most every probe interval.
func heapUtilization() float64 {
	heapProbe.mu.Lock()
	defer heapProbe.mu.Unlock()

	if time.Since(heapProbe.at) < heapProbeInterval {
		return heapProbe.heapPct
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapSys > 0 {
		heapProbe.heapPct = float64(m.HeapAlloc) / float64(m.HeapSys) * 100
	}
	heapProbe.at = time.Now()
	return heapProbe.heapPct
}

// effectiveFanout computes how many portfolio children may simulate
// concurrently: the requested parallelism capped by configuration, halved
// under heap pressure, halved again for very large trial counts, and never
// below 1.
func (s *Service) effectiveFanout(requested, nTrials, nChildren int) int {
	fanout := requested
	if fanout <= 0 || fanout > s.cfg.MaxFanout {
		fanout = s.cfg.MaxFanout
	}
	if nChildren > 0 && fanout > nChildren {
		fanout = nChildren
	}

	if nTrials > s.cfg.LargeTrialCutover {
		fanout /= 2
	}
	if heapUtilization() > s.cfg.HeapPressurePct {
		fanout /= 2
	}

	if fanout < 1 {
		fanout = 1
	}
	return fanout
}
