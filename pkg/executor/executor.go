package executor

import (
	"bufio"
	"context"
	"os/exec"
	"strings"

	"github.com/cuemby/volguard/pkg/log"
)

// Kind distinguishes commands that only observe state from commands that
// change it. Read commands always execute, even in simulate mode.
type Kind int

const (
	Read Kind = iota
	Mutate
)

// Result is what a command produced: its exit code, the full combined
// stdout/stderr text, and the first line of that text trimmed of
// surrounding whitespace (a convenience for the many commands whose
// answer is a single value).
type Result struct {
	ExitCode  int
	Output    string
	FirstLine string
}

// Executor runs a command line and reports the outcome. Implementations
// must not spawn a process for a Mutate command while in simulate mode.
type Executor interface {
	Run(ctx context.Context, kind Kind, cmdline []string, description string) (Result, error)
}

// ShellExecutor runs commands on the host via os/exec. DryRun gates Mutate
// commands only; Read commands always run so the rest of the core can
// observe real state even in simulate mode.
type ShellExecutor struct {
	DryRun bool
}

// New returns a ShellExecutor in the given mode.
func New(dryRun bool) *ShellExecutor {
	return &ShellExecutor{DryRun: dryRun}
}

// Run executes cmdline[0] with the remaining elements as arguments. For a
// Mutate command under DryRun it never spawns a process: it logs the
// description and returns a synthetic success.
func (e *ShellExecutor) Run(ctx context.Context, kind Kind, cmdline []string, description string) (Result, error) {
	logger := log.WithComponent("executor")

	if e.DryRun && kind == Mutate {
		logger.Warn().Str("description", description).Strs("cmd", cmdline).
			Msg("dry-run: skipping mutating command")
		return Result{ExitCode: 0}, nil
	}

	if len(cmdline) == 0 {
		return Result{ExitCode: -1}, exec.ErrNotFound
	}

	logger.Debug().Str("description", description).Strs("cmd", cmdline).Msg("running command")

	cmd := exec.CommandContext(ctx, cmdline[0], cmdline[1:]...)
	out, err := cmd.CombinedOutput()

	output := string(out)
	firstLine := ""
	scanner := bufio.NewScanner(strings.NewReader(output))
	if scanner.Scan() {
		firstLine = strings.TrimSpace(scanner.Text())
	}

	if err == nil {
		return Result{ExitCode: 0, Output: output, FirstLine: firstLine}, nil
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		return Result{ExitCode: exitErr.ExitCode(), Output: output, FirstLine: firstLine}, nil
	}

	return Result{ExitCode: -1, Output: output, FirstLine: firstLine}, err
}
