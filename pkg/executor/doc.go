// Package executor centralizes how volguard runs external commands. Every
// mutating shell command routes through it so the dry-run gate lives in
// exactly one place: callers never branch on simulate-vs-apply mode
// themselves.
package executor
