// Package metrics provides the injected counter service. Counters are
// process-local and reset on restart; nothing correctness-critical may read
// them.
package metrics

import "sync"

// Counter names used by the sync layer.
const (
	JobsEnqueued  = "jobs_enqueued"
	JobsDeduped   = "jobs_deduped"
	JobsClaimed   = "jobs_claimed"
	JobsCompleted = "jobs_completed"
	JobsRetried   = "jobs_retried"
	JobsFailed    = "jobs_failed"
	TxAdded       = "tx_added"
	TxModified    = "tx_modified"
	TxRemoved     = "tx_removed"
)

// Counters is a mutex-guarded set of named monotone counters.
type Counters struct {
	mu     sync.Mutex
	counts map[string]int64
}

func NewCounters() *Counters {
	return &Counters{counts: make(map[string]int64)}
}

func (c *Counters) Add(name string, delta int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.counts[name] += delta
	c.mu.Unlock()
}

func (c *Counters) Inc(name string) { c.Add(name, 1) }

func (c *Counters) Get(name string) int64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// Snapshot returns a copy of all counters.
func (c *Counters) Snapshot() map[string]int64 {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Reset zeroes everything, matching restart semantics.
func (c *Counters) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.counts = make(map[string]int64)
	c.mu.Unlock()
}
