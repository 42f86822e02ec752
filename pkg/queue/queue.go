package queue

import (
	"context"

	"github.com/cuemby/volguard/pkg/log"
)

// Queue is a single-slot mailbox for pending device remediations. The
// zero value is not usable; construct with New.
type Queue struct {
	slot chan string // buffered, capacity 1
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{slot: make(chan string, 1)}
}

// Enqueue stores device if the slot is empty. If a request is already
// pending, the new one is dropped and a warning is logged: the system
// already knows a volume needs attention, and the next scan will observe
// the same or worse condition and try again.
func (q *Queue) Enqueue(device string) {
	select {
	case q.slot <- device:
	default:
		log.WithComponent("queue").Warn().Str("device", device).
			Msg("queue slot occupied, dropping duplicate remediation request")
	}
}

// Dequeue blocks until a device is available or ctx is cancelled. It
// returns false only on cancellation; a channel receive observes ctx.Done
// immediately, so no polling is needed to bound shutdown latency.
func (q *Queue) Dequeue(ctx context.Context) (string, bool) {
	select {
	case device := <-q.slot:
		return device, true
	case <-ctx.Done():
		return "", false
	}
}

// Len reports 1 if a request is pending, 0 otherwise.
func (q *Queue) Len() int {
	return len(q.slot)
}
