package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/volguard/pkg/classifier"
	"github.com/cuemby/volguard/pkg/executor"
	"github.com/cuemby/volguard/pkg/log"
	"github.com/cuemby/volguard/pkg/metrics"
	"github.com/cuemby/volguard/pkg/probe"
	"github.com/cuemby/volguard/pkg/queue"
	"github.com/cuemby/volguard/pkg/registry"
	"github.com/cuemby/volguard/pkg/types"
)

// ErrInsufficientSpace means the VG still does not have enough free space
// for the extend step after the donor-shrink and fallback-PV phases.
var ErrInsufficientSpace = errors.New("planner: insufficient vg free space")

const bytesPerGiB = 1 << 30

// Config carries the tunables spec.md §6 assigns to the planner.
type Config struct {
	ExtendStepBytes int64
	DonorMinFree    int64
	FallbackDevice  string
	LockFile        string
	ShrinkableFS    map[string]bool
	PostOpCooldown  time.Duration
	Classify        classifier.Config
}

// Planner drains the request queue and remediates one device at a time.
type Planner struct {
	cfg      Config
	probe    *probe.Probe
	exec     executor.Executor
	registry *registry.Registry
	queue    *queue.Queue
	stats    *registry.StatsTracker

	cancel context.CancelFunc
	done   chan struct{}
}

// New assembles a Planner.
func New(cfg Config, p *probe.Probe, exec executor.Executor, r *registry.Registry, q *queue.Queue, stats *registry.StatsTracker) *Planner {
	return &Planner{
		cfg:      cfg,
		probe:    p,
		exec:     exec,
		registry: r,
		queue:    q,
		stats:    stats,
		done:     make(chan struct{}),
	}
}

// Start begins draining the queue in its own goroutine.
func (p *Planner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.run(ctx)
}

// Stop cancels the planner loop and waits for it to exit.
func (p *Planner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *Planner) run(ctx context.Context) {
	defer close(p.done)
	logger := log.WithComponent("planner")
	logger.Info().Msg("planner started")

	for {
		device, ok := p.queue.Dequeue(ctx)
		if !ok {
			logger.Info().Msg("planner stopped")
			return
		}
		p.HandleDevice(ctx, device)

		select {
		case <-time.After(p.cfg.PostOpCooldown):
		case <-ctx.Done():
			return
		}
	}
}

// HandleDevice runs the remediation plan for one device: spec.md §4.7
// steps 1-6; the post-operation cooldown (step 7) is applied by the run
// loop after HandleDevice returns. It always releases the advisory lock before returning,
// including on a panic recovered at this call site.
func (p *Planner) HandleDevice(ctx context.Context, device string) {
	runID := uuid.NewString()
	logger := log.WithDevice(device).With().Str("run_id", runID).Logger()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PlannerDuration)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("recovered from panic during remediation")
		}
	}()

	lock, err := acquireLock(p.cfg.LockFile)
	if err != nil {
		if errors.Is(err, ErrLockBusy) {
			logger.Warn().Msg("another attempt holds the lock, skipping")
		} else {
			logger.Error().Err(err).Msg("could not acquire advisory lock")
		}
		return
	}
	defer lock.release()

	p.registry.GetOrCreate(device, "")
	p.registry.SetMessage(device, "extending...")

	// Step 1: resolve.
	vg, lv, err := p.probe.ResolveDevice(ctx, device)
	if err != nil {
		logger.Error().Err(err).Msg("resolution failed")
		p.registry.SetMessage(device, "extension failed (resolution)")
		return
	}
	logger.Info().Str("vg", vg).Str("lv", lv).Msg("resolved target")

	// Step 2: query free space.
	needed := p.cfg.ExtendStepBytes
	have := p.probe.VGFreeBytes(ctx, vg)
	if have < 0 {
		logger.Error().Msg("could not read vg free space")
		p.registry.SetMessage(device, "extension failed (resolution)")
		return
	}

	// Step 3: donor shrink phase.
	if have < needed {
		freed := p.shrinkDonorLVs(ctx, &logger, vg, lv, needed-have)
		logger.Info().Int64("bytes_freed", freed).Msg("donor shrink phase complete")
		have = p.probe.VGFreeBytes(ctx, vg)
	}

	// Step 4: fallback annexation phase.
	if have < needed && p.cfg.FallbackDevice != "" {
		if p.addFallbackPV(ctx, &logger, vg) {
			have = p.probe.VGFreeBytes(ctx, vg)
		}
	}

	// Step 5/6: extend phase.
	if have < needed {
		logger.Warn().Int64("have", have).Int64("needed", needed).Msg("insufficient space after remediation attempts")
		p.registry.SetMessage(device, "extension failed (insufficient space)")
		p.stats.IncExtensionFailed()
		metrics.ExtensionsTotal.WithLabelValues("failed").Inc()
		return
	}

	fsType := p.probe.FSType(ctx, vg, lv)
	res, err := p.exec.Run(ctx, executor.Mutate,
		[]string{"sudo", "lvextend", "-r", "-L", sizeArg(+1, needed), fmt.Sprintf("/dev/%s/%s", vg, lv)},
		fmt.Sprintf("extend %s/%s by %s", vg, lv, formatSize(needed)))
	if err != nil || res.ExitCode != 0 {
		logger.Error().Err(err).Int("exit_code", res.ExitCode).Msg("extension failed")
		p.registry.SetMessage(device, fmt.Sprintf("extension failed (exit %d)", res.ExitCode))
		p.stats.IncExtensionFailed()
		metrics.ExtensionsTotal.WithLabelValues("failed").Inc()
		return
	}

	sizeBytes, usedBytes, freeBytes := p.lvByteAccounting(ctx, vg, lv)
	p.registry.RecordExtension(device, vg, lv, fsType, sizeBytes, usedBytes, freeBytes)
	p.registry.SetMessage(device, "extension succeeded")
	p.stats.IncExtensionSucceeded()
	metrics.ExtensionsTotal.WithLabelValues("succeeded").Inc()
	logger.Info().Msg("extension succeeded")
}

// shrinkDonorLVs implements spec.md §4.7 step 3: shrink eligible siblings
// until accumulated freed bytes meets shortfall or siblings are exhausted.
func (p *Planner) shrinkDonorLVs(ctx context.Context, logger *zerolog.Logger, vg, targetLV string, shortfall int64) int64 {
	lvs, err := p.probe.ListLVs(ctx, vg)
	if err != nil {
		logger.Warn().Err(err).Msg("could not list LVs for donor search")
		return 0
	}

	var freed int64
	donorsFound := 0
	for _, candidate := range lvs {
		if candidate.Name == targetLV {
			continue
		}

		donorDevice := fmt.Sprintf("/dev/%s/%s", vg, candidate.Name)
		if entry, ok := p.registry.Get(donorDevice); ok {
			if classifier.Classify(entry, p.cfg.Classify) == types.StateHungry {
				continue
			}
		}

		fsType := p.probe.FSType(ctx, vg, candidate.Name)
		if !p.cfg.ShrinkableFS[fsType] {
			continue
		}

		fsFree := p.probe.FSFreeBytes(ctx, vg, candidate.Name)
		if fsFree < p.cfg.DonorMinFree {
			continue
		}

		donorsFound++
		res, runErr := p.exec.Run(ctx, executor.Mutate,
			[]string{"sudo", "lvreduce", "-r", "-L", sizeArg(-1, p.cfg.ExtendStepBytes), "-y",
				fmt.Sprintf("/dev/%s/%s", vg, candidate.Name)},
			fmt.Sprintf("shrink %s/%s by %s", vg, candidate.Name, formatSize(p.cfg.ExtendStepBytes)))
		if runErr != nil || res.ExitCode != 0 {
			logger.Warn().Str("donor", candidate.Name).Int("exit_code", res.ExitCode).
				Msg("donor shrink failed")
			continue
		}

		freed += p.cfg.ExtendStepBytes
		p.registry.RecordShrink(fmt.Sprintf("/dev/%s/%s", vg, candidate.Name))
		p.stats.IncShrinks()
		metrics.ShrinksTotal.Inc()

		if freed >= shortfall {
			break
		}
	}

	if donorsFound == 0 {
		logger.Warn().Str("vg", vg).Msg("no suitable donor LVs found")
	}
	return freed
}

// addFallbackPV implements spec.md §4.7 step 4: annex the configured
// fallback device into vg if it exists and is not already a PV.
func (p *Planner) addFallbackPV(ctx context.Context, logger *zerolog.Logger, vg string) bool {
	device := p.cfg.FallbackDevice

	if !p.probe.DeviceExists(device) {
		logger.Error().Str("device", device).Msg("fallback device does not exist")
		return false
	}

	if p.probe.IsPhysicalVolume(ctx, device) {
		logger.Warn().Str("device", device).Msg("fallback device is already a physical volume")
		return false
	}

	res, err := p.exec.Run(ctx, executor.Mutate, []string{"sudo", "pvcreate", "-y", device},
		fmt.Sprintf("create PV on %s", device))
	if err != nil || res.ExitCode != 0 {
		logger.Error().Int("exit_code", res.ExitCode).Msg("pvcreate failed")
		return false
	}

	res, err = p.exec.Run(ctx, executor.Mutate, []string{"sudo", "vgextend", vg, device},
		fmt.Sprintf("extend VG %s with %s", vg, device))
	if err != nil || res.ExitCode != 0 {
		logger.Error().Int("exit_code", res.ExitCode).Msg("vgextend failed")
		return false
	}

	p.stats.IncFallbackPVs()
	metrics.FallbackPVsTotal.Inc()
	logger.Info().Str("device", device).Str("vg", vg).Msg("added fallback PV")
	return true
}

// lvByteAccounting opportunistically reads the post-extension size and free
// space of vg/lv, for the registry's supplemental byte-accounting fields.
// A negative return means that particular value could not be probed; the
// registry leaves the corresponding field untouched in that case.
func (p *Planner) lvByteAccounting(ctx context.Context, vg, lv string) (sizeBytes, usedBytes, freeBytes int64) {
	sizeBytes, usedBytes, freeBytes = -1, -1, -1

	lvs, err := p.probe.ListLVs(ctx, vg)
	if err == nil {
		for _, candidate := range lvs {
			if candidate.Name == lv {
				sizeBytes = candidate.SizeBytes
				break
			}
		}
	}

	freeBytes = p.probe.FSFreeBytes(ctx, vg, lv)

	if sizeBytes >= 0 && freeBytes >= 0 {
		usedBytes = sizeBytes - freeBytes
	}
	return sizeBytes, usedBytes, freeBytes
}

// formatSize renders bytes as whole gibibytes for log messages.
func formatSize(bytes int64) string {
	return fmt.Sprintf("%dG", bytes/bytesPerGiB)
}

// sizeArg renders a signed `-L` argument in gibibytes, e.g. "+1G" or "-1G".
func sizeArg(sign int, bytes int64) string {
	gib := bytes / bytesPerGiB
	if sign < 0 {
		return fmt.Sprintf("-%dG", gib)
	}
	return fmt.Sprintf("+%dG", gib)
}
