package video

import (
	"context"
	"sync"
	"time"
)

// Mailbox is a single-slot frame holder. Publishing overwrites the
// previous frame; frames are dropped, never queued.
type Mailbox struct {
	mu     sync.Mutex
	frame  Frame
	seq    uint64
	taken  bool
	closed bool
	ready  chan struct{}
	done   chan struct{}
	once   sync.Once
	stats  Stats
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{ready: make(chan struct{}, 1), done: make(chan struct{})}
}

// Publish stores f as the latest frame and assigns its sequence number.
// A previous frame nobody read is counted as dropped.
func (m *Mailbox) Publish(f Frame) Frame {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return f
	}
	if m.seq > 0 && !m.taken {
		m.stats.Dropped++
	}
	m.seq++
	f.Seq = m.seq
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	m.frame = f
	m.taken = false
	m.stats.Published++
	m.stats.LastSeq = f.Seq
	m.stats.LastAt = f.Timestamp
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return f
}

// Frame returns the latest frame without waiting.
func (m *Mailbox) Frame() (Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Frame{}, ErrClosed
	}
	if m.seq == 0 {
		return Frame{}, ErrNoFrame
	}
	if !m.taken {
		m.taken = true
		m.stats.Consumed++
	}
	return m.frame, nil
}

// Wait blocks until a frame newer than after is available.
func (m *Mailbox) Wait(ctx context.Context, after uint64) (Frame, error) {
	for {
		m.mu.Lock()
		closed, seq := m.closed, m.seq
		m.mu.Unlock()

		if closed {
			return Frame{}, ErrClosed
		}
		if seq > after {
			return m.Frame()
		}

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-m.done:
		case <-m.ready:
		}
	}
}

// Close wakes waiters and rejects further reads.
func (m *Mailbox) Close() {
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.done)
	})
}

// Stats returns a snapshot of the mailbox counters.
func (m *Mailbox) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
