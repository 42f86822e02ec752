package writer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/volguard/pkg/log"
)

const (
	fileSizeBytes = 1 << 20 // 1 MiB per file
	keepLatest    = 200
	cleanupEvery  = 500
)

// Config controls one writer instance.
type Config struct {
	Name     string
	BaseDir  string
	Interval time.Duration
	DryRun   bool
}

// Writer fills Config.BaseDir/Config.Name with numbered files on a
// timer, deleting all but the most recent keepLatest periodically.
type Writer struct {
	cfg     Config
	workdir string
	cancel  context.CancelFunc
	done    chan struct{}
}

// New assembles a Writer. It does not touch the filesystem.
func New(cfg Config) *Writer {
	return &Writer{
		cfg:     cfg,
		workdir: filepath.Join(cfg.BaseDir, cfg.Name),
		done:    make(chan struct{}),
	}
}

// Start begins writing in its own goroutine.
func (w *Writer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.run(ctx)
}

// Stop cancels the loop and waits for it to exit.
func (w *Writer) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.done)
	logger := log.WithComponent("writer").With().Str("writer", w.cfg.Name).Logger()

	if w.cfg.DryRun {
		logger.Info().Str("workdir", w.workdir).Msg("started in dry-run mode, simulating writes")
	} else {
		if err := os.MkdirAll(w.workdir, 0o755); err != nil {
			logger.Error().Err(err).Msg("could not create working directory")
			return
		}
		logger.Info().Str("workdir", w.workdir).Msg("started")
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	var i uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i++
			w.writeOne(logger, i)
		}
	}
}

func (w *Writer) writeOne(logger zerolog.Logger, i uint64) {
	fname := filepath.Join(w.workdir, fmt.Sprintf("%s_file_%d.dat", w.cfg.Name, i))

	if w.cfg.DryRun {
		if i%100 == 0 {
			logger.Debug().Uint64("count", i).Msg("would create file")
		}
		return
	}

	f, err := os.Create(fname)
	if err != nil {
		logger.Warn().Err(err).Str("file", fname).Msg("could not create file")
		return
	}
	_, err = f.Write(make([]byte, fileSizeBytes))
	if err == nil {
		err = f.Sync()
	}
	f.Close()
	if err != nil {
		logger.Warn().Err(err).Str("file", fname).Msg("write failed")
	}

	if i%cleanupEvery == 0 {
		w.cleanup(logger)
	}
}

// cleanup keeps only the keepLatest most recently modified files in
// workdir, deleting the rest.
func (w *Writer) cleanup(logger zerolog.Logger) {
	entries, err := os.ReadDir(w.workdir)
	if err != nil {
		return
	}
	type fileInfo struct {
		name    string
		modTime time.Time
	}
	files := make([]fileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: e.Name(), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

	if len(files) <= keepLatest {
		return
	}
	for _, f := range files[keepLatest:] {
		os.Remove(filepath.Join(w.workdir, f.name))
	}
	logger.Debug().Int("kept", keepLatest).Msg("cleaned old files")
}
