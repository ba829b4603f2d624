package heuristic

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/teslashibe/go-focuscoach/internal/log"
	"github.com/teslashibe/go-focuscoach/pkg/presence"
	"github.com/teslashibe/go-focuscoach/pkg/video"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNonDarkFraction(t *testing.T) {
	tests := []struct {
		name     string
		pix      []byte
		channels int
		want     float64
	}{
		{"all black", []byte{0, 0, 0, 0, 0, 0}, 3, 0},
		{"at threshold is dark", []byte{5, 5, 5, 0, 0, 0}, 3, 0},
		{"one channel lit", []byte{0, 6, 0, 0, 0, 0}, 3, 0.5},
		{"all lit", []byte{200, 10, 10, 9, 9, 9}, 3, 1},
		{"alpha ignored", []byte{0, 0, 0, 255, 9, 0, 0, 255}, 4, 0.5},
		{"grey", []byte{6, 40, 0}, 1, 2.0 / 3.0},
		{"empty", nil, 3, 0},
		{"bad channels", []byte{1, 2, 3}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NonDarkFraction(tt.pix, tt.channels, 5); got != tt.want {
				t.Errorf("NonDarkFraction = %v, want %v", got, tt.want)
			}
		})
	}
}

// brightness canvas: a frame whose first byte is b renders a 10x10 raster
// where the first b pixels are lit.
func brightnessCanvas() Canvas {
	return CanvasFunc(func(f video.Frame) ([]byte, int, error) {
		if len(f.JPEG) == 0 {
			return nil, 0, errors.New("empty")
		}
		pix := make([]byte, 100*3)
		lit := int(f.JPEG[0])
		for i := 0; i < lit && i < 100; i++ {
			pix[i*3] = 255
		}
		return pix, 3, nil
	})
}

type sink struct {
	mu   sync.Mutex
	sigs []presence.Signal
}

func (s *sink) add(sig presence.Signal) {
	s.mu.Lock()
	s.sigs = append(s.sigs, sig)
	s.mu.Unlock()
}

func (s *sink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sigs)
}

func (s *sink) last() presence.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sigs[len(s.sigs)-1]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func newDetector(src video.Source, gate presence.Gate) (*Detector, *sink) {
	cfg := DefaultConfig()
	cfg.FPS = 200
	d := New(src, gate, cfg, WithCanvas(brightnessCanvas()), WithLogger(log.Discard()))
	s := &sink{}
	d.OnSignal(s.add)
	return d, s
}

func TestDetectorPresence(t *testing.T) {
	src := video.NewStatic()
	d, s := newDetector(src, nil)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	src.Push([]byte{50}, 10, 10) // 50% lit
	waitFor(t, func() bool { return s.len() > 0 && s.last().Present })

	got := s.last()
	if got.FaceCount != 1 || got.Source != presence.KindHeuristic {
		t.Errorf("signal: got %+v", got)
	}

	src.Push([]byte{5}, 10, 10) // exactly 5% lit, not above
	waitFor(t, func() bool { return !s.last().Present })

	if got := s.last(); got.FaceCount != 0 {
		t.Errorf("FaceCount when absent: got %d, want 0", got.FaceCount)
	}

	src.Push([]byte{6}, 10, 10)
	waitFor(t, func() bool { return s.last().Present })
}

func TestDetectorNoFrameYet(t *testing.T) {
	src := video.NewStatic()
	d, s := newDetector(src, nil)

	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	d.Stop()

	if s.len() != 0 {
		t.Errorf("signals without frames: got %d, want 0", s.len())
	}
}

func TestDetectorGate(t *testing.T) {
	src := video.NewStatic()
	src.Push([]byte{80}, 10, 10)

	var active atomic.Bool
	d, s := newDetector(src, presence.GateFunc(active.Load))

	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	time.Sleep(30 * time.Millisecond)
	if s.len() != 0 {
		t.Fatalf("sampled while gate closed: %d signals", s.len())
	}

	active.Store(true)
	waitFor(t, func() bool { return s.len() > 0 })

	active.Store(false)
	time.Sleep(20 * time.Millisecond)
	n := s.len()
	time.Sleep(40 * time.Millisecond)
	if s.len() != n {
		t.Errorf("sampling continued after gate closed: %d -> %d", n, s.len())
	}
}

func TestDetectorIdlesWhileGateClosed(t *testing.T) {
	src := video.NewStatic()
	src.Push([]byte{80}, 10, 10)

	var active atomic.Bool
	cfg := DefaultConfig()
	cfg.FPS = 200
	cfg.IdleInterval = 50 * time.Millisecond
	d := New(src, presence.GateFunc(active.Load), cfg, WithCanvas(brightnessCanvas()), WithLogger(log.Discard()))
	s := &sink{}
	d.OnSignal(s.add)

	wakeups := func() uint64 {
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.wakeups
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	// At 200 fps this window would hold about 50 ticks.
	time.Sleep(250 * time.Millisecond)
	if n := wakeups(); n > 10 {
		t.Errorf("wakeups while gate closed: got %d, want at most 10", n)
	}
	if s.len() != 0 {
		t.Fatalf("sampled while gate closed: %d signals", s.len())
	}

	active.Store(true)
	waitFor(t, func() bool { return s.len() > 5 })
}

func TestDetectorStopIsSynchronous(t *testing.T) {
	src := video.NewStatic()
	src.Push([]byte{80}, 10, 10)
	d, s := newDetector(src, nil)

	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.len() > 0 })

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	n := s.len()
	time.Sleep(30 * time.Millisecond)
	if s.len() != n {
		t.Errorf("signal delivered after Stop")
	}
	if err := d.Start(context.Background()); err == nil {
		t.Error("Start after Stop should fail")
	}
}

func TestDetectorSourceClosed(t *testing.T) {
	src := video.NewStatic()
	src.Push([]byte{80}, 10, 10)
	d, _ := newDetector(src, nil)

	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	src.Close()

	select {
	case err := <-d.Err():
		if !errors.Is(err, presence.ErrRasterUnavailable) {
			t.Errorf("Err: got %v, want ErrRasterUnavailable", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error after source closed")
	}
}

func TestDetectorNoSource(t *testing.T) {
	d := New(nil, nil, DefaultConfig(), WithCanvas(brightnessCanvas()))
	err := d.Start(context.Background())
	if !errors.Is(err, presence.ErrRasterUnavailable) {
		t.Errorf("Start without source: got %v, want ErrRasterUnavailable", err)
	}
	if kind, _ := presence.KindOf(err); kind != presence.KindHeuristic {
		t.Errorf("kind: got %q", kind)
	}
}

func TestDetectorReusesVerdictForSameFrame(t *testing.T) {
	src := video.NewStatic()
	src.Push([]byte{80}, 10, 10)

	var draws atomic.Int32
	canvas := CanvasFunc(func(f video.Frame) ([]byte, int, error) {
		draws.Add(1)
		return []byte{255, 255, 255}, 3, nil
	})
	cfg := DefaultConfig()
	cfg.FPS = 200
	d := New(src, nil, cfg, WithCanvas(canvas), WithLogger(log.Discard()))
	s := &sink{}
	d.OnSignal(s.add)

	if err := d.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.len() >= 5 })
	d.Stop()

	if got := draws.Load(); got != 1 {
		t.Errorf("draws for a single frame: got %d, want 1", got)
	}
	if d.Samples() < 5 {
		t.Errorf("Samples: got %d, want >= 5", d.Samples())
	}
}
