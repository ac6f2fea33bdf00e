// Package buffer provides the bounded frame queue between the acquisition
// callback and the recording writer.
//
// Policy: never block the producer, never grow without bound. On overflow
// the oldest queued frame is evicted to admit the newest, so sustained
// overload costs staleness, not a stall. The resulting gaps are exactly
// what the sequence log records downstream.
package buffer

import (
	"sync/atomic"
	"time"

	"camcapture/models"
)

// DefaultCapacity matches the stock recording profile.
const DefaultCapacity = 4096

// FrameQueue is a fixed-capacity FIFO carrying frames from one producer
// to one consumer. Enqueue never blocks; Dequeue blocks up to a timeout so
// the consumer can wake for idle housekeeping.
type FrameQueue struct {
	ch      chan *models.Frame
	evicted atomic.Uint64
}

// New creates a queue with the given capacity (DefaultCapacity if <= 0).
func New(capacity int) *FrameQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &FrameQueue{ch: make(chan *models.Frame, capacity)}
}

// Enqueue appends f, evicting exactly one oldest frame first when the
// queue is full. Never blocks and never fails; under a racing consumer the
// new frame itself may be the one dropped.
func (q *FrameQueue) Enqueue(f *models.Frame) {
	select {
	case q.ch <- f:
		return
	default:
	}

	// Full: evict the oldest entry, then retry once.
	select {
	case <-q.ch:
		q.evicted.Add(1)
	default:
	}
	select {
	case q.ch <- f:
	default:
		q.evicted.Add(1)
	}
}

// Dequeue returns the oldest frame, waiting up to timeout for one to
// arrive. ok is false on timeout.
func (q *FrameQueue) Dequeue(timeout time.Duration) (f *models.Frame, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f = <-q.ch:
		return f, true
	case <-timer.C:
		return nil, false
	}
}

// TryDequeue returns the oldest frame without waiting. Used to drain the
// backlog during shutdown.
func (q *FrameQueue) TryDequeue() (f *models.Frame, ok bool) {
	select {
	case f = <-q.ch:
		return f, true
	default:
		return nil, false
	}
}

// Len reports the number of queued frames.
func (q *FrameQueue) Len() int { return len(q.ch) }

// Capacity reports the fixed queue capacity.
func (q *FrameQueue) Capacity() int { return cap(q.ch) }

// Evicted reports how many frames overflow has discarded so far.
func (q *FrameQueue) Evicted() uint64 { return q.evicted.Load() }
