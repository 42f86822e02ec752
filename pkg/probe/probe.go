package probe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cuemby/volguard/pkg/executor"
	"github.com/cuemby/volguard/pkg/log"
)

// ErrProbeFailed means a read-kind command returned a non-zero exit code
// or output that could not be parsed. Callers should treat the probed
// value as missing and skip the affected step.
var ErrProbeFailed = errors.New("probe: command failed")

// ErrResolution means a device path could not be resolved to a (vg, lv)
// pair by either the volume-manager listing tool or structural parsing.
var ErrResolution = errors.New("probe: could not resolve device to vg/lv")

// devicePrefix is the canonical device-node prefix kept by ScanMounts.
const devicePrefix = "/dev/"

// MountEntry is one row of a filesystem-usage report.
type MountEntry struct {
	Device     string
	Mountpoint string
	UsePct     int
}

// Probe wraps an Executor with fixed read-kind commands.
type Probe struct {
	exec executor.Executor
}

// New returns a Probe backed by the given Executor.
func New(exec executor.Executor) *Probe {
	return &Probe{exec: exec}
}

func (p *Probe) run(ctx context.Context, cmdline []string, description string) (string, int, error) {
	res, err := p.exec.Run(ctx, executor.Read, cmdline, description)
	if err != nil {
		return "", -1, fmt.Errorf("%w: %s: %v", ErrProbeFailed, description, err)
	}
	return res.FirstLine, res.ExitCode, nil
}

// ScanMounts runs a POSIX-mode filesystem-usage report and keeps only
// entries whose device begins with the canonical device-node prefix.
// Lines with the wrong column count are silently dropped; a trailing '%'
// on the usage column is stripped before parsing; a blank usage is 0.
func (p *Probe) ScanMounts(ctx context.Context) ([]MountEntry, error) {
	res, err := p.exec.Run(ctx, executor.Read, []string{"df", "-P"}, "scan filesystem usage")
	if err != nil {
		return nil, fmt.Errorf("%w: scan mounts: %v", ErrProbeFailed, err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("%w: df exited %d", ErrProbeFailed, res.ExitCode)
	}

	return parseDF(res.Output), nil
}

// parseDF parses `df -P` output, skipping its first (header) line.
func parseDF(output string) []MountEntry {
	var entries []MountEntry
	scanner := bufio.NewScanner(strings.NewReader(output))
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			// header row: "Filesystem 1024-blocks Used Available Capacity Mounted on"
			first = false
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 6 {
			continue
		}
		device := fields[0]
		if !strings.HasPrefix(device, devicePrefix) {
			continue
		}
		usep := strings.TrimSuffix(fields[4], "%")
		pct := 0
		if usep != "" {
			if v, err := strconv.Atoi(usep); err == nil {
				pct = v
			}
		}
		entries = append(entries, MountEntry{
			Device:     device,
			Mountpoint: fields[5],
			UsePct:     pct,
		})
	}
	return entries
}

// ResolveDevice derives (vg, lv) for a device, first via the volume-manager
// listing tool, then by structural parsing of the two accepted device-path
// shapes. It fails with ErrResolution if neither yields both parts.
func (p *Probe) ResolveDevice(ctx context.Context, device string) (vg, lv string, err error) {
	line, _, runErr := p.run(ctx, []string{"lvs", "--noheadings", "-o", "vg_name,lv_name", device},
		fmt.Sprintf("resolve %s via lvs", device))
	if runErr == nil {
		fields := strings.Fields(line)
		if len(fields) == 2 {
			return fields[0], fields[1], nil
		}
	}

	if vg, lv, ok := parseDevicePath(device); ok {
		return vg, lv, nil
	}

	return "", "", fmt.Errorf("%w: %s", ErrResolution, device)
}

// parseDevicePath accepts "/dev/<vg>/<lv>" and "/dev/mapper/<vg>-<lv>".
func parseDevicePath(device string) (vg, lv string, ok bool) {
	if strings.Contains(device, "/mapper/") {
		idx := strings.LastIndex(device, "/")
		if idx < 0 {
			return "", "", false
		}
		name := device[idx+1:]
		dash := strings.Index(name, "-")
		if dash < 0 {
			return "", "", false
		}
		vg, lv = name[:dash], name[dash+1:]
		return vg, lv, vg != "" && lv != ""
	}

	trimmed := strings.TrimPrefix(device, "/dev/")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// VGFreeBytes returns the volume group's free space in bytes, or a
// negative sentinel on probe failure.
func (p *Probe) VGFreeBytes(ctx context.Context, vg string) int64 {
	line, _, err := p.run(ctx, []string{"vgs", "--noheadings", "--units", "b", "--nosuffix", "-o", "vg_free", vg},
		fmt.Sprintf("query vg free bytes for %s", vg))
	if err != nil {
		log.WithVG(vg).Warn().Err(err).Msg("vg free bytes probe failed")
		return -1
	}
	v, parseErr := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
	if parseErr != nil {
		return -1
	}
	return v
}

// FSType returns the filesystem type of an LV, or empty on failure.
func (p *Probe) FSType(ctx context.Context, vg, lv string) string {
	path := fmt.Sprintf("/dev/%s/%s", vg, lv)
	line, code, err := p.run(ctx, []string{"lsblk", "-no", "FSTYPE", path}, fmt.Sprintf("query fs type for %s", path))
	if err != nil || code != 0 {
		return ""
	}
	return strings.TrimSpace(line)
}

// FSFreeBytes returns the bytes available inside the mounted filesystem of
// the given LV.
func (p *Probe) FSFreeBytes(ctx context.Context, vg, lv string) int64 {
	path := fmt.Sprintf("/dev/%s/%s", vg, lv)
	res, err := p.exec.Run(ctx, executor.Read,
		[]string{"df", "-P", "--block-size=1", path},
		fmt.Sprintf("query fs free bytes for %s", path))
	if err != nil || res.ExitCode != 0 {
		return -1
	}
	// Last line, 4th whitespace-separated field ("Available").
	lines := strings.Split(strings.TrimRight(res.Output, "\n"), "\n")
	last := lines[len(lines)-1]
	fields := strings.Fields(last)
	if len(fields) < 4 {
		return -1
	}
	v, parseErr := strconv.ParseInt(fields[3], 10, 64)
	if parseErr != nil {
		return -1
	}
	return v
}

// DeviceExists reports whether device names an existing node on disk. It
// never runs a command; the check is a plain stat(2).
func (p *Probe) DeviceExists(device string) bool {
	_, err := os.Stat(device)
	return err == nil
}

// IsPhysicalVolume reports whether device is already registered as a PV.
func (p *Probe) IsPhysicalVolume(ctx context.Context, device string) bool {
	res, err := p.exec.Run(ctx, executor.Read,
		[]string{"pvs", "--noheadings", "-o", "pv_name"},
		"list physical volumes")
	if err != nil || res.ExitCode != 0 {
		return false
	}
	scanner := bufio.NewScanner(strings.NewReader(res.Output))
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == device {
			return true
		}
	}
	return false
}

// LVEntry is one row of a logical-volume listing.
type LVEntry struct {
	Name      string
	SizeBytes int64
}

// ListLVs lists all logical volumes in vg with raw byte sizes.
func (p *Probe) ListLVs(ctx context.Context, vg string) ([]LVEntry, error) {
	res, err := p.exec.Run(ctx, executor.Read,
		[]string{"lvs", "--noheadings", "-o", "lv_name,lv_size", "--units", "b", "--nosuffix", vg},
		fmt.Sprintf("list LVs in %s", vg))
	if err != nil {
		return nil, fmt.Errorf("%w: list LVs in %s: %v", ErrProbeFailed, vg, err)
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("%w: lvs exited %d", ErrProbeFailed, res.ExitCode)
	}

	var entries []LVEntry
	scanner := bufio.NewScanner(strings.NewReader(res.Output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		size, parseErr := strconv.ParseInt(fields[1], 10, 64)
		if parseErr != nil {
			continue
		}
		entries = append(entries, LVEntry{Name: fields[0], SizeBytes: size})
	}
	return entries, nil
}
