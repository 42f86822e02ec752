package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/volguard/pkg/classifier"
	"github.com/cuemby/volguard/pkg/executor"
	"github.com/cuemby/volguard/pkg/probe"
	"github.com/cuemby/volguard/pkg/queue"
	"github.com/cuemby/volguard/pkg/registry"
)

// scriptedExecutor returns one fixed df -P report for every call, letting
// supervisor tests exercise the real probe.Probe without shelling out.
type scriptedExecutor struct {
	output string
}

func (s *scriptedExecutor) Run(_ context.Context, _ executor.Kind, _ []string, _ string) (executor.Result, error) {
	return executor.Result{ExitCode: 0, Output: s.output, FirstLine: firstLineOf(s.output)}, nil
}

func firstLineOf(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}

func newTestSupervisor(t *testing.T, dfOutput string) (*Supervisor, *registry.Registry, *queue.Queue, *registry.StatsTracker) {
	t.Helper()
	p := probe.New(&scriptedExecutor{output: dfOutput})
	r := registry.New(64, 12)
	q := queue.New()
	stats := registry.NewStatsTracker()
	cfg := Config{
		CheckInterval:   10 * time.Millisecond,
		MonitoredMounts: map[string]bool{"/data": true},
		Classify:        classifier.Config{ThresholdHigh: 80, ThresholdLow: 40},
	}
	return New(cfg, p, r, q, stats), r, q, stats
}

func TestTick_EnqueuesHungryMonitoredMount(t *testing.T) {
	df := "Filesystem     1024-blocks    Used Available Capacity Mounted on\n" +
		"/dev/vg0/data     1048576  943718    104858      90% /data\n"
	sup, r, q, stats := newTestSupervisor(t, df)

	sup.tick(context.Background())

	entry, ok := r.Get("/dev/vg0/data")
	require.True(t, ok)
	assert.Equal(t, 90, entry.UsePct)
	assert.Equal(t, "queued for extension", entry.LastMsg)
	assert.Equal(t, uint64(1), stats.Snapshot().ChecksPerformed)

	device, ok := q.Dequeue(contextWithTimeout(t))
	require.True(t, ok)
	assert.Equal(t, "/dev/vg0/data", device)
}

func TestTick_IgnoresUnmonitoredMount(t *testing.T) {
	df := "Filesystem     1024-blocks    Used Available Capacity Mounted on\n" +
		"/dev/vg0/other     1048576  943718    104858      90% /other\n"
	sup, r, q, _ := newTestSupervisor(t, df)

	sup.tick(context.Background())

	_, ok := r.Get("/dev/vg0/other")
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestTick_OverProvisionedSetsMessageWithoutEnqueue(t *testing.T) {
	p := probe.New(&scriptedExecutor{})
	r := registry.New(64, 3)
	q := queue.New()
	stats := registry.NewStatsTracker()
	cfg := Config{
		CheckInterval:   10 * time.Millisecond,
		MonitoredMounts: map[string]bool{"/data": true},
		Classify:        classifier.Config{ThresholdHigh: 80, ThresholdLow: 40},
	}
	sup := New(cfg, p, r, q, stats)

	sup.observe(probe.MountEntry{Device: "/dev/vg0/data", Mountpoint: "/data", UsePct: 10})
	sup.observe(probe.MountEntry{Device: "/dev/vg0/data", Mountpoint: "/data", UsePct: 10})
	sup.observe(probe.MountEntry{Device: "/dev/vg0/data", Mountpoint: "/data", UsePct: 10})

	entry, ok := r.Get("/dev/vg0/data")
	require.True(t, ok)
	assert.Equal(t, "over-provisioned", entry.LastMsg)
	assert.Equal(t, 0, q.Len())
}

func TestStartStop(t *testing.T) {
	df := "Filesystem     1024-blocks    Used Available Capacity Mounted on\n"
	sup, _, _, _ := newTestSupervisor(t, df)
	sup.Start()
	time.Sleep(30 * time.Millisecond)
	sup.Stop()
}

func contextWithTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}
