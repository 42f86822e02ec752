package statusserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cuemby/volguard/pkg/log"
	"github.com/cuemby/volguard/pkg/registry"
)

// acceptDeadline bounds how long Accept blocks so shutdown is observed
// promptly even with no incoming connections, per spec.md §5's
// "Suspension points".
const acceptDeadline = time.Second

type statsJSON struct {
	Checks         uint64 `json:"checks"`
	ExtensionsOK   uint64 `json:"extensions_ok"`
	ExtensionsFail uint64 `json:"extensions_fail"`
	Shrinks        uint64 `json:"shrinks"`
	FallbackPVs    uint64 `json:"fallback_pvs"`
}

type volumeJSON struct {
	Device string `json:"device"`
	Mount  string `json:"mount"`
	Use    int    `json:"use"`
	Msg    string `json:"msg"`
}

type statusJSON struct {
	Status  string       `json:"status"`
	DryRun  bool         `json:"dry_run"`
	Stats   statsJSON    `json:"stats"`
	Volumes []volumeJSON `json:"volumes"`
}

// Config carries the status endpoint's tunables.
type Config struct {
	Addr      string // "" or port 0 disables the endpoint; the caller decides
	DryRun    bool
	MaxBuffer int
}

// Server serves the read-only status snapshot. One request, one
// response, connection closed: no keep-alive, no mutation.
type Server struct {
	cfg      Config
	registry *registry.Registry
	stats    *registry.StatsTracker

	listener *net.TCPListener
	stopFn   context.CancelFunc
	done     chan struct{}
}

// New assembles a Server backed by r and stats.
func New(cfg Config, r *registry.Registry, stats *registry.StatsTracker) *Server {
	return &Server{cfg: cfg, registry: r, stats: stats, done: make(chan struct{})}
}

// Start binds cfg.Addr and begins serving in its own goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("statusserver: listen on %s: %w", s.cfg.Addr, err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return fmt.Errorf("statusserver: expected *net.TCPListener, got %T", ln)
	}
	s.listener = tcpLn

	ctx, cancel := context.WithCancel(context.Background())
	s.stopFn = cancel
	go s.run(ctx)
	return nil
}

func (s *Server) run(ctx context.Context) {
	defer close(s.done)
	logger := log.WithComponent("statusserver")
	logger.Info().Str("addr", s.cfg.Addr).Msg("status endpoint listening")

	for {
		select {
		case <-ctx.Done():
			s.listener.Close()
			logger.Info().Msg("status endpoint stopped")
			return
		default:
		}

		s.listener.SetDeadline(time.Now().Add(acceptDeadline))
		conn, err := s.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
				logger.Warn().Err(err).Msg("accept failed")
				continue
			}
		}

		s.handleConn(conn)
	}
}

// Stop cancels the accept loop and waits for it to exit.
func (s *Server) Stop() {
	if s.stopFn != nil {
		s.stopFn()
	}
	<-s.done
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	logger := log.WithComponent("statusserver")

	conn.SetDeadline(time.Now().Add(5 * time.Second))

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		if line == "\r\n" || line == "\n" {
			break
		}
	}

	body, err := json.Marshal(s.snapshot())
	if err != nil {
		logger.Error().Err(err).Msg("could not marshal status snapshot")
		return
	}

	bodyStr := string(body)
	if s.cfg.MaxBuffer > 0 && len(bodyStr) > s.cfg.MaxBuffer {
		cut := s.cfg.MaxBuffer - 3
		if cut < 0 {
			cut = 0
		}
		bodyStr = bodyStr[:cut] + "..."
	}

	response := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\n"+
			"Content-Type: application/json\r\n"+
			"Access-Control-Allow-Origin: *\r\n"+
			"Content-Length: %d\r\n\r\n%s",
		len(bodyStr), bodyStr)

	conn.Write([]byte(response))
}

func (s *Server) snapshot() statusJSON {
	stats := s.stats.Snapshot()
	entries := s.registry.Snapshot()

	volumes := make([]volumeJSON, 0, len(entries))
	for _, e := range entries {
		volumes = append(volumes, volumeJSON{
			Device: e.Device,
			Mount:  e.Mountpoint,
			Use:    e.UsePct,
			Msg:    e.LastMsg,
		})
	}

	return statusJSON{
		Status: "running",
		DryRun: s.cfg.DryRun,
		Stats: statsJSON{
			Checks:         stats.ChecksPerformed,
			ExtensionsOK:   stats.ExtensionsSucceeded,
			ExtensionsFail: stats.ExtensionsFailed,
			Shrinks:        stats.ShrinksPerformed,
			FallbackPVs:    stats.FallbackPVsAdded,
		},
		Volumes: volumes,
	}
}
