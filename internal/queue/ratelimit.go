package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// heartbeatRateLimit bounds how often a single worker's heartbeat is
// allowed to reach the store. A worker retrying aggressively after a
// network blip should not be able to starve the stats sampler or
// flood the persistence layer; one heartbeat every 200ms per worker
// is far above any real liveness interval.
const heartbeatRateLimit = rate.Limit(5) // per second
const heartbeatBurst = 5

// heartbeatLimiters tracks one token bucket per worker ID, created on
// first use and never evicted here — sweepStaleWorkers already bounds
// the set of workers that matter, so a handful of abandoned limiters
// for long-gone worker IDs is not worth the bookkeeping to prune.
type heartbeatLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newHeartbeatLimiters() *heartbeatLimiters {
	return &heartbeatLimiters{limiters: make(map[string]*rate.Limiter)}
}

func (h *heartbeatLimiters) allow(workerID string) bool {
	h.mu.Lock()
	l, ok := h.limiters[workerID]
	if !ok {
		l = rate.NewLimiter(heartbeatRateLimit, heartbeatBurst)
		h.limiters[workerID] = l
	}
	h.mu.Unlock()
	return l.Allow()
}
