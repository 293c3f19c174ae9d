package audioio

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// FrameQueue is a bounded FIFO of audio frames. When full, Push discards
// the oldest frame so the consumer always sees the most recent audio.
type FrameQueue struct {
	capacity int

	mu     sync.Mutex
	frames []AudioChunk
	closed bool
	ready  chan struct{}

	pushed  atomic.Int64
	dropped atomic.Int64
}

// NewFrameQueue creates a queue holding at most capacity frames.
func NewFrameQueue(capacity int) *FrameQueue {
	return &FrameQueue{
		capacity: max(1, capacity),
		ready:    make(chan struct{}, 1),
	}
}

// Push appends a frame. It reports whether an old frame was dropped.
// Pushing to a closed queue does nothing.
func (q *FrameQueue) Push(c AudioChunk) (dropped bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if len(q.frames) >= q.capacity {
		q.frames = q.frames[1:]
		dropped = true
	}
	q.frames = append(q.frames, c)
	q.mu.Unlock()

	q.pushed.Add(1)
	if dropped {
		q.dropped.Add(1)
	}
	q.signal()
	return dropped
}

func (q *FrameQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop blocks for the next frame. It returns io.EOF once the queue is
// closed and empty.
func (q *FrameQueue) Pop(ctx context.Context) (AudioChunk, error) {
	for {
		q.mu.Lock()
		if len(q.frames) > 0 {
			c := q.frames[0]
			q.frames[0] = AudioChunk{}
			q.frames = q.frames[1:]
			more := len(q.frames) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return c, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return AudioChunk{}, io.EOF
		}

		select {
		case <-ctx.Done():
			return AudioChunk{}, ctx.Err()
		case <-q.ready:
		}
	}
}

// Drain discards every queued frame and returns how many there were.
func (q *FrameQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.frames)
	q.frames = nil
	return n
}

// Close wakes any waiting Pop. Frames already queued can still be popped.
func (q *FrameQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Len returns the number of queued frames.
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Pushed returns the number of frames ever pushed.
func (q *FrameQueue) Pushed() int64 { return q.pushed.Load() }

// Dropped returns the number of frames discarded for lack of room.
func (q *FrameQueue) Dropped() int64 { return q.dropped.Load() }

// Feed copies frames from src into the queue until src closes or ctx is
// done, then closes the queue.
func (q *FrameQueue) Feed(ctx context.Context, src <-chan AudioChunk) {
	defer q.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-src:
			if !ok {
				return
			}
			q.Push(c)
		}
	}
}
