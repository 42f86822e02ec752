package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/volguard/pkg/classifier"
	"github.com/cuemby/volguard/pkg/log"
	"github.com/cuemby/volguard/pkg/metrics"
	"github.com/cuemby/volguard/pkg/probe"
	"github.com/cuemby/volguard/pkg/queue"
	"github.com/cuemby/volguard/pkg/registry"
	"github.com/cuemby/volguard/pkg/types"
)

// Config carries everything the supervisor needs beside its collaborators.
type Config struct {
	CheckInterval   time.Duration
	MonitoredMounts map[string]bool
	Classify        classifier.Config
}

// Supervisor runs the periodic scan loop described in spec.md §4.6: scan,
// classify, and enqueue remediation for hungry volumes.
type Supervisor struct {
	cfg      Config
	probe    *probe.Probe
	registry *registry.Registry
	queue    *queue.Queue
	stats    *registry.StatsTracker

	logger zerolog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// New assembles a Supervisor.
func New(cfg Config, p *probe.Probe, r *registry.Registry, q *queue.Queue, stats *registry.StatsTracker) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		probe:    p,
		registry: r,
		queue:    q,
		stats:    stats,
		logger:   log.WithComponent("supervisor"),
		done:     make(chan struct{}),
	}
}

// Start begins the scan loop in its own goroutine.
func (s *Supervisor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx)
}

// Stop cancels the scan loop and waits for it to exit.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.cfg.CheckInterval).Msg("supervisor started")

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			s.logger.Info().Msg("supervisor stopped")
			return
		}
	}
}

// tick performs one scan cycle: spec.md §4.6 steps 1-3.
func (s *Supervisor) tick(ctx context.Context) {
	mounts, err := s.probe.ScanMounts(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("scan_mounts failed")
		return
	}

	for _, m := range mounts {
		if !s.cfg.MonitoredMounts[m.Mountpoint] {
			continue
		}
		s.observe(m)
	}

	s.stats.IncChecks()
	metrics.ChecksPerformed.Inc()
}

func (s *Supervisor) observe(m probe.MountEntry) {
	entry, ok := s.registry.RecordSample(m.Device, m.Mountpoint, m.UsePct)
	if !ok {
		return
	}
	metrics.VolumeUsePercent.WithLabelValues(m.Device).Set(float64(m.UsePct))

	state := classifier.Classify(entry, s.cfg.Classify)
	switch state {
	case types.StateHungry:
		s.registry.SetMessage(m.Device, "queued for extension")
		s.queue.Enqueue(m.Device)
		log.WithDevice(m.Device).Info().Int("use_pct", m.UsePct).Msg("volume is hungry, queued for extension")
	case types.StateOverProvisioned:
		s.registry.SetMessage(m.Device, "over-provisioned")
	case types.StateOK:
		// no queue side-effect
	}
}
