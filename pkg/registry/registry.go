package registry

import (
	"sync"
	"time"

	"github.com/cuemby/volguard/pkg/log"
	"github.com/cuemby/volguard/pkg/types"
)

// Registry is volguard's bounded table of monitored volumes, keyed by
// device path. It is safe for concurrent use by the supervisor, planner
// and status endpoint.
type Registry struct {
	mu             sync.RWMutex
	entries        map[string]*types.VolumeEntry
	order          []string // insertion order, for Snapshot
	maxVolumes     int
	historySamples int
}

// New returns an empty Registry bounded at maxVolumes entries, each
// keeping a ring buffer of historySamples usage samples.
func New(maxVolumes, historySamples int) *Registry {
	return &Registry{
		entries:        make(map[string]*types.VolumeEntry),
		maxVolumes:     maxVolumes,
		historySamples: historySamples,
	}
}

// GetOrCreate returns the entry for device, creating it if the table has
// room. If the table is already at maxVolumes and device is unknown, it
// logs a warning, returns nil, false and the device is dropped from
// monitoring, mirroring the original's fixed-array registration limit.
func (r *Registry) GetOrCreate(device, mountpoint string) (*types.VolumeEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[device]; ok {
		if mountpoint != "" {
			e.Mountpoint = mountpoint
		}
		return e, true
	}

	if len(r.entries) >= r.maxVolumes {
		log.WithComponent("registry").Warn().Str("device", device).
			Int("max_volumes", r.maxVolumes).Msg("registry full, dropping new volume")
		return nil, false
	}

	e := &types.VolumeEntry{
		Device:     device,
		Mountpoint: mountpoint,
		History:    make([]int, r.historySamples),
		FirstSeen:  time.Now(),
	}
	r.entries[device] = e
	r.order = append(r.order, device)
	log.WithComponent("registry").Info().Str("device", device).Str("mountpoint", mountpoint).
		Msg("registered new volume")
	return e, true
}

// Get returns a snapshot of the entry for device, if known.
func (r *Registry) Get(device string) (types.VolumeEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[device]
	if !ok {
		return types.VolumeEntry{}, false
	}
	return e.Snapshot(), true
}

// RecordSample writes a fresh usage percentage into device's entry,
// creating the entry first if needed, and advances its ring buffer. The
// percentage write, ring advance, and LastAction timestamp happen under
// one write-lock critical section.
func (r *Registry) RecordSample(device, mountpoint string, usePct int) (types.VolumeEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[device]
	if !ok {
		if len(r.entries) >= r.maxVolumes {
			log.WithComponent("registry").Warn().Str("device", device).
				Int("max_volumes", r.maxVolumes).Msg("registry full, dropping new volume")
			return types.VolumeEntry{}, false
		}
		e = &types.VolumeEntry{
			Device:    device,
			History:   make([]int, r.historySamples),
			FirstSeen: time.Now(),
		}
		r.entries[device] = e
		r.order = append(r.order, device)
	}

	if mountpoint != "" {
		e.Mountpoint = mountpoint
	}
	e.UsePct = usePct
	e.LastAction = time.Now()

	n := len(e.History)
	e.History[e.HistoryPos] = usePct
	e.HistoryPos = (e.HistoryPos + 1) % n
	if e.HistoryFilled < n {
		e.HistoryFilled++
	}

	return e.Snapshot(), true
}

// SetMessage records a human-readable status line for device without
// touching its usage history.
func (r *Registry) SetMessage(device, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[device]; ok {
		e.LastMsg = msg
		e.LastAction = time.Now()
	}
}

// RecordExtension increments the extension counter and records resolved
// VG/LV/FSType metadata, learned once the planner has resolved the device.
// sizeBytes/usedBytes/freeBytes are opportunistic byte accounting the
// planner picks up along the way; a negative value means it was not
// probed successfully this attempt and the existing field is left alone.
func (r *Registry) RecordExtension(device, vg, lv, fsType string, sizeBytes, usedBytes, freeBytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[device]
	if !ok {
		return
	}
	if vg != "" {
		e.VG = vg
	}
	if lv != "" {
		e.LV = lv
	}
	if fsType != "" {
		e.FSType = fsType
	}
	if sizeBytes >= 0 {
		e.SizeBytes = sizeBytes
	}
	if usedBytes >= 0 {
		e.UsedBytes = usedBytes
	}
	if freeBytes >= 0 {
		e.FreeBytes = freeBytes
	}
	e.ExtensionCount++
}

// RecordShrink increments the shrink counter for device.
func (r *Registry) RecordShrink(device string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[device]; ok {
		e.ShrinkCount++
	}
}

// Snapshot returns a deep copy of every entry, in registration order.
func (r *Registry) Snapshot() []types.VolumeEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.VolumeEntry, 0, len(r.order))
	for _, device := range r.order {
		if e, ok := r.entries[device]; ok {
			out = append(out, e.Snapshot())
		}
	}
	return out
}

// Len reports how many volumes are currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
