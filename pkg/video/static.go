package video

import (
	"context"
	"sync"
	"time"
)

// Waiter is implemented by sources that can block for the next frame.
type Waiter interface {
	Wait(ctx context.Context, after uint64) (Frame, error)
}

// Static is an in-memory source. Tests and replay tools push frames into
// it; reads behave like the webcam mailbox.
type Static struct {
	box *Mailbox

	mu  sync.Mutex
	err error
}

var (
	_ Source = (*Static)(nil)
	_ Waiter = (*Static)(nil)
)

// NewStatic creates an empty static source.
func NewStatic() *Static {
	return &Static{box: NewMailbox()}
}

// Push publishes jpeg as the latest frame.
func (s *Static) Push(jpeg []byte, width, height int) Frame {
	return s.box.Publish(Frame{
		Timestamp: time.Now(),
		Width:     width,
		Height:    height,
		JPEG:      jpeg,
	})
}

// Fail makes every subsequent read return err. A nil err clears it.
func (s *Static) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Frame implements Source.
func (s *Static) Frame() (Frame, error) {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return Frame{}, err
	}
	return s.box.Frame()
}

// Wait implements Waiter.
func (s *Static) Wait(ctx context.Context, after uint64) (Frame, error) {
	return s.box.Wait(ctx, after)
}

// Stats returns mailbox counters.
func (s *Static) Stats() Stats {
	return s.box.Stats()
}

// Close rejects further reads.
func (s *Static) Close() error {
	s.box.Close()
	return nil
}
