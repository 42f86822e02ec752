package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cuemby/volguard/pkg/classifier"
	"github.com/cuemby/volguard/pkg/config"
	"github.com/cuemby/volguard/pkg/executor"
	"github.com/cuemby/volguard/pkg/log"
	"github.com/cuemby/volguard/pkg/metrics"
	"github.com/cuemby/volguard/pkg/planner"
	"github.com/cuemby/volguard/pkg/probe"
	"github.com/cuemby/volguard/pkg/queue"
	"github.com/cuemby/volguard/pkg/registry"
	"github.com/cuemby/volguard/pkg/statusserver"
	"github.com/cuemby/volguard/pkg/supervisor"
	"github.com/cuemby/volguard/pkg/writer"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

var cfgFile string
var cfg = config.Default()

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "volguard",
	Short:   "volguard monitors LVM logical volumes and extends hungry ones automatically",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("volguard version %s\nCommit: %s\n", Version, Commit))

	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "path to an optional YAML config file")
	flags.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "simulate mutating commands instead of running them")
	flags.IntVar(&cfg.CheckIntervalSeconds, "check-interval", cfg.CheckIntervalSeconds, "supervisor scan cadence, in seconds")
	flags.IntVar(&cfg.ThresholdHigh, "threshold-high", cfg.ThresholdHigh, "usage percent that marks a volume hungry")
	flags.IntVar(&cfg.ThresholdLow, "threshold-low", cfg.ThresholdLow, "usage percent ceiling for over-provisioned, inclusive")
	flags.IntVar(&cfg.HistorySamples, "history-samples", cfg.HistorySamples, "ring buffer length for usage history")
	flags.Int64Var(&cfg.ExtendStepBytes, "extend-step-bytes", cfg.ExtendStepBytes, "size of each extend and donor shrink, in bytes")
	flags.Int64Var(&cfg.DonorMinFree, "donor-min-free-bytes", cfg.DonorMinFree, "minimum filesystem free bytes for a donor")
	flags.StringVar(&cfg.FallbackDevice, "fallback-device", cfg.FallbackDevice, "optional physical volume to annex when donors are insufficient")
	flags.StringVar(&cfg.LockFile, "lock-file", cfg.LockFile, "advisory lock file path")
	flags.StringSliceVar(&cfg.MonitoredMounts, "monitored-mounts", cfg.MonitoredMounts, "exact mountpoints to watch")
	flags.StringSliceVar(&cfg.ShrinkableFS, "shrinkable-fs", cfg.ShrinkableFS, "filesystem types eligible as donors")
	flags.IntVar(&cfg.StatusPort, "status-port", cfg.StatusPort, "TCP port for the status endpoint; 0 disables")
	flags.IntVar(&cfg.MaxVolumes, "max-volumes", cfg.MaxVolumes, "hard cap on tracked volumes")
	flags.IntVar(&cfg.MaxBuffer, "max-buffer", cfg.MaxBuffer, "hard cap on the status response body, in bytes")
	flags.IntVar(&cfg.PostOpCooldownSeconds, "post-op-cooldown", cfg.PostOpCooldownSeconds, "pause after handling a device before the planner accepts another, in seconds")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "bind address for the Prometheus /metrics endpoint; empty disables it")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "output logs in JSON format")
	flags.BoolVar(&cfg.EnableWriter, "enable-writer", cfg.EnableWriter, "run a synthetic load generator against the first monitored mount")
}

func run(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		loaded, err := config.LoadFile(cfgFile, config.Default())
		if err != nil {
			return err
		}
		applyFileConfig(cmd, &cfg, loaded)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("main")
	logger.Info().
		Bool("dry_run", cfg.DryRun).
		Int("check_interval_s", cfg.CheckIntervalSeconds).
		Int("threshold_high", cfg.ThresholdHigh).
		Int("threshold_low", cfg.ThresholdLow).
		Strs("monitored_mounts", cfg.MonitoredMounts).
		Int("status_port", cfg.StatusPort).
		Msg("starting volguard")

	exec := executor.New(cfg.DryRun)
	p := probe.New(exec)
	reg := registry.New(cfg.MaxVolumes, cfg.HistorySamples)
	stats := registry.NewStatsTracker()
	q := queue.New()

	classifyCfg := classifier.Config{ThresholdHigh: cfg.ThresholdHigh, ThresholdLow: cfg.ThresholdLow}

	sup := supervisor.New(supervisor.Config{
		CheckInterval:   cfg.CheckInterval(),
		MonitoredMounts: cfg.MonitoredMountSet(),
		Classify:        classifyCfg,
	}, p, reg, q, stats)

	pl := planner.New(planner.Config{
		ExtendStepBytes: cfg.ExtendStepBytes,
		DonorMinFree:    cfg.DonorMinFree,
		FallbackDevice:  cfg.FallbackDevice,
		LockFile:        cfg.LockFile,
		ShrinkableFS:    cfg.ShrinkableFSSet(),
		PostOpCooldown:  cfg.PostOpCooldown(),
		Classify:        classifyCfg,
	}, p, exec, reg, q, stats)

	sup.Start()
	pl.Start()
	logger.Info().Msg("supervisor and planner started")

	var statusSrv *statusserver.Server
	if cfg.StatusPort != 0 {
		statusSrv = statusserver.New(statusserver.Config{
			Addr:      fmt.Sprintf(":%d", cfg.StatusPort),
			DryRun:    cfg.DryRun,
			MaxBuffer: cfg.MaxBuffer,
		}, reg, stats)
		if err := statusSrv.Start(); err != nil {
			return err
		}
		logger.Info().Int("port", cfg.StatusPort).Msg("status endpoint listening")
	}

	var metricsHTTP *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsHTTP = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server error")
			}
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint listening")
	}

	var wr *writer.Writer
	if cfg.EnableWriter && len(cfg.MonitoredMounts) > 0 {
		wr = writer.New(writer.Config{
			Name:     "volguard-writer",
			BaseDir:  cfg.MonitoredMounts[0],
			Interval: 200 * time.Millisecond,
			DryRun:   cfg.DryRun,
		})
		wr.Start()
		logger.Info().Str("base_dir", cfg.MonitoredMounts[0]).Msg("writer started")
	}

	statsTicker := time.NewTicker(60 * time.Second)
	defer statsTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

loop:
	for {
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("shutdown requested")
			break loop
		case <-statsTicker.C:
			logStats(logger, stats, reg)
		}
	}

	sup.Stop()
	pl.Stop()
	if statusSrv != nil {
		statusSrv.Stop()
	}
	if metricsHTTP != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		metricsHTTP.Shutdown(shutdownCtx)
		cancel()
	}
	if wr != nil {
		wr.Stop()
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

// applyFileConfig layers a loaded config file's values onto cfg, skipping
// every field whose flag was explicitly set on the command line: flags
// always win over the file, and the file in turn overrides the struct
// defaults (fields absent from the file keep their default values).
func applyFileConfig(cmd *cobra.Command, cfg *config.Config, file config.Config) {
	changed := cmd.Flags().Changed

	if !changed("dry-run") {
		cfg.DryRun = file.DryRun
	}
	if !changed("check-interval") {
		cfg.CheckIntervalSeconds = file.CheckIntervalSeconds
	}
	if !changed("threshold-high") {
		cfg.ThresholdHigh = file.ThresholdHigh
	}
	if !changed("threshold-low") {
		cfg.ThresholdLow = file.ThresholdLow
	}
	if !changed("history-samples") {
		cfg.HistorySamples = file.HistorySamples
	}
	if !changed("extend-step-bytes") {
		cfg.ExtendStepBytes = file.ExtendStepBytes
	}
	if !changed("donor-min-free-bytes") {
		cfg.DonorMinFree = file.DonorMinFree
	}
	if !changed("fallback-device") {
		cfg.FallbackDevice = file.FallbackDevice
	}
	if !changed("lock-file") {
		cfg.LockFile = file.LockFile
	}
	if !changed("monitored-mounts") {
		cfg.MonitoredMounts = file.MonitoredMounts
	}
	if !changed("shrinkable-fs") {
		cfg.ShrinkableFS = file.ShrinkableFS
	}
	if !changed("status-port") {
		cfg.StatusPort = file.StatusPort
	}
	if !changed("max-volumes") {
		cfg.MaxVolumes = file.MaxVolumes
	}
	if !changed("max-buffer") {
		cfg.MaxBuffer = file.MaxBuffer
	}
	if !changed("post-op-cooldown") {
		cfg.PostOpCooldownSeconds = file.PostOpCooldownSeconds
	}
	if !changed("metrics-addr") {
		cfg.MetricsAddr = file.MetricsAddr
	}
	if !changed("log-level") {
		cfg.LogLevel = file.LogLevel
	}
	if !changed("log-json") {
		cfg.LogJSON = file.LogJSON
	}
	if !changed("enable-writer") {
		cfg.EnableWriter = file.EnableWriter
	}
}

func logStats(logger zerolog.Logger, stats *registry.StatsTracker, reg *registry.Registry) {
	s := stats.Snapshot()
	logger.Info().
		Uint64("checks", s.ChecksPerformed).
		Uint64("extensions_ok", s.ExtensionsSucceeded).
		Uint64("extensions_fail", s.ExtensionsFailed).
		Uint64("shrinks", s.ShrinksPerformed).
		Uint64("fallback_pvs", s.FallbackPVsAdded).
		Int("tracked_volumes", reg.Len()).
		Msg("periodic stats")
}
