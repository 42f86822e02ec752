package registry

import (
	"sync"
	"time"

	"github.com/cuemby/volguard/pkg/types"
)

// StatsTracker guards the process-wide counters with its own mutex,
// independent of the volume table's lock, so a stats increment from the
// planner never blocks a status-endpoint read of the registry.
type StatsTracker struct {
	mu sync.Mutex
	s  types.Stats
}

// NewStatsTracker returns a tracker with StartTime set to now.
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{s: types.Stats{StartTime: time.Now()}}
}

// IncChecks increments checks_performed and stamps last_check.
func (t *StatsTracker) IncChecks() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.ChecksPerformed++
	t.s.LastCheck = time.Now()
}

// IncExtensionSucceeded increments extensions_succeeded.
func (t *StatsTracker) IncExtensionSucceeded() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.ExtensionsSucceeded++
}

// IncExtensionFailed increments extensions_failed.
func (t *StatsTracker) IncExtensionFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.ExtensionsFailed++
}

// IncShrinks increments shrinks_performed.
func (t *StatsTracker) IncShrinks() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.ShrinksPerformed++
}

// IncFallbackPVs increments fallback_pvs_added.
func (t *StatsTracker) IncFallbackPVs() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.FallbackPVsAdded++
}

// Snapshot returns a copy of the current counters.
func (t *StatsTracker) Snapshot() types.Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}
