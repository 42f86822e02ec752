package statusserver

import (
	"bufio"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/volguard/pkg/registry"
)

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func request(t *testing.T, addr string) (int, statusJSON, string) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Write([]byte("GET /status HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	require.NoError(t, err)

	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
	}

	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}

	var parsed statusJSON
	_ = json.Unmarshal([]byte(sb.String()), &parsed)
	return 200, parsed, statusLine
}

func TestServer_ReportsRegistrySnapshot(t *testing.T) {
	r := registry.New(8, 4)
	stats := registry.NewStatsTracker()
	r.RecordSample("/dev/vg0/data", "/data", 55)
	stats.IncChecks()
	stats.IncExtensionSucceeded()

	addr := freePort(t)
	srv := New(Config{Addr: addr, DryRun: true, MaxBuffer: 1 << 20}, r, stats)
	require.NoError(t, srv.Start())
	defer srv.Stop()

	time.Sleep(20 * time.Millisecond)

	_, body, statusLine := request(t, addr)
	assert.Contains(t, statusLine, "200")
	assert.True(t, body.DryRun)
	assert.Equal(t, "running", body.Status)
	assert.Equal(t, uint64(1), body.Stats.Checks)
	assert.Equal(t, uint64(1), body.Stats.ExtensionsOK)
	require.Len(t, body.Volumes, 1)
	assert.Equal(t, "/dev/vg0/data", body.Volumes[0].Device)
	assert.Equal(t, 55, body.Volumes[0].Use)
}

func TestServer_TruncatesOversizedBody(t *testing.T) {
	r := registry.New(64, 4)
	stats := registry.NewStatsTracker()
	for i := 0; i < 20; i++ {
		r.RecordSample("/dev/vg0/vol"+string(rune('a'+i)), "/mnt/vol"+string(rune('a'+i)), 10)
	}

	addr := freePort(t)
	srv := New(Config{Addr: addr, MaxBuffer: 128}, r, stats)
	require.NoError(t, srv.Start())
	defer srv.Stop()

	time.Sleep(20 * time.Millisecond)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
	}
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	assert.True(t, strings.HasSuffix(sb.String(), "..."))
	assert.LessOrEqual(t, len(sb.String()), 128)
}

func TestServer_StopClosesListener(t *testing.T) {
	r := registry.New(8, 4)
	stats := registry.NewStatsTracker()
	addr := freePort(t)
	srv := New(Config{Addr: addr, MaxBuffer: 1 << 20}, r, stats)
	require.NoError(t, srv.Start())

	time.Sleep(10 * time.Millisecond)
	srv.Stop()

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)
}
