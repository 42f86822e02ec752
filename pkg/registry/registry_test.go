package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreate_NewAndExisting(t *testing.T) {
	r := New(2, 4)

	e, ok := r.GetOrCreate("/dev/vg0/data", "/data")
	require.True(t, ok)
	assert.Equal(t, "/dev/vg0/data", e.Device)
	assert.Equal(t, "/data", e.Mountpoint)
	assert.Len(t, e.History, 4)

	e2, ok := r.GetOrCreate("/dev/vg0/data", "")
	require.True(t, ok)
	assert.Same(t, e, e2)
	assert.Equal(t, "/data", e2.Mountpoint) // unchanged by empty mountpoint
}

func TestGetOrCreate_RespectsMaxVolumes(t *testing.T) {
	r := New(1, 4)
	_, ok := r.GetOrCreate("/dev/vg0/a", "/a")
	require.True(t, ok)

	_, ok = r.GetOrCreate("/dev/vg0/b", "/b")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRecordSample_AdvancesRingBuffer(t *testing.T) {
	r := New(4, 3)
	r.RecordSample("/dev/vg0/data", "/data", 50)
	r.RecordSample("/dev/vg0/data", "/data", 60)
	r.RecordSample("/dev/vg0/data", "/data", 70)
	r.RecordSample("/dev/vg0/data", "/data", 80) // wraps

	snap, ok := r.Get("/dev/vg0/data")
	require.True(t, ok)
	assert.Equal(t, 80, snap.UsePct)
	assert.Equal(t, 3, snap.HistoryFilled)
	assert.Equal(t, []int{80, 60, 70}, snap.History) // position 0 overwritten by the 4th sample

	last, ok := snap.MostRecentSample()
	require.True(t, ok)
	assert.Equal(t, 80, last)
}

func TestRecordSample_CreatesEntryIfMissing(t *testing.T) {
	r := New(4, 3)
	snap, ok := r.RecordSample("/dev/vg0/new", "/new", 42)
	require.True(t, ok)
	assert.Equal(t, 42, snap.UsePct)
	assert.Equal(t, 1, snap.HistoryFilled)
}

func TestRecordSample_RespectsMaxVolumesForNewDevice(t *testing.T) {
	r := New(1, 3)
	_, ok := r.RecordSample("/dev/vg0/a", "/a", 10)
	require.True(t, ok)
	_, ok = r.RecordSample("/dev/vg0/b", "/b", 10)
	assert.False(t, ok)
}

func TestSnapshot_PreservesInsertionOrder(t *testing.T) {
	r := New(4, 3)
	r.GetOrCreate("/dev/vg0/first", "/first")
	r.GetOrCreate("/dev/vg0/second", "/second")

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "/dev/vg0/first", snap[0].Device)
	assert.Equal(t, "/dev/vg0/second", snap[1].Device)
}

func TestSnapshot_IsADeepCopy(t *testing.T) {
	r := New(4, 3)
	r.RecordSample("/dev/vg0/data", "/data", 50)

	snap := r.Snapshot()
	snap[0].History[0] = 999

	again, _ := r.Get("/dev/vg0/data")
	assert.NotEqual(t, 999, again.History[0])
}

func TestRecordExtensionAndShrink(t *testing.T) {
	r := New(4, 3)
	r.GetOrCreate("/dev/vg0/data", "/data")
	r.RecordExtension("/dev/vg0/data", "vg0", "data", "ext4", 107374182400, 96636764160, 10737418240)
	r.RecordExtension("/dev/vg0/data", "", "", "", -1, -1, -1)
	r.RecordShrink("/dev/vg0/data")

	snap, _ := r.Get("/dev/vg0/data")
	assert.Equal(t, "vg0", snap.VG)
	assert.Equal(t, "data", snap.LV)
	assert.Equal(t, "ext4", snap.FSType)
	assert.Equal(t, int64(107374182400), snap.SizeBytes)
	assert.Equal(t, int64(96636764160), snap.UsedBytes)
	assert.Equal(t, int64(10737418240), snap.FreeBytes)
	assert.Equal(t, 2, snap.ExtensionCount)
	assert.Equal(t, 1, snap.ShrinkCount)
}
