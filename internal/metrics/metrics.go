package metrics

import (
	"sync"
	"sync/atomic"
)

// engineStats holds counters for rule engine activity.
// Kept simple/thread-safe for use from the engine and exposition.
type engineStats struct {
	passes    uint64
	mu        sync.Mutex
	byOutcome map[string]uint64
}

var eng engineStats

// IncPass counts one started processing pass.
func IncPass() {
	atomic.AddUint64(&eng.passes, 1)
}

// IncRuleOutcome counts one rule execution outcome (success/failed/skipped).
func IncRuleOutcome(status string) {
	if status == "" {
		status = "unknown"
	}
	eng.mu.Lock()
	if eng.byOutcome == nil {
		eng.byOutcome = make(map[string]uint64)
	}
	eng.byOutcome[status]++
	eng.mu.Unlock()
}

// EngineSnapshot returns a copy of the current counters.
func EngineSnapshot() (passes uint64, byOutcome map[string]uint64) {
	passes = atomic.LoadUint64(&eng.passes)
	eng.mu.Lock()
	defer eng.mu.Unlock()
	byOutcome = make(map[string]uint64, len(eng.byOutcome))
	for k, v := range eng.byOutcome {
		byOutcome[k] = v
	}
	return passes, byOutcome
}
