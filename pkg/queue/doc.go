// Package queue is volguard's single-slot remediation mailbox. It holds at
// most one pending device at a time; enqueuing the same or a different
// device while one is already pending coalesces into that one slot rather
// than growing a backlog, so a slow planner never falls behind a bursty
// supervisor.
package queue
