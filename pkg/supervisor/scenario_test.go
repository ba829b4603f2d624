package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-focuscoach/internal/log"
	"github.com/teslashibe/go-focuscoach/pkg/attention"
	"github.com/teslashibe/go-focuscoach/pkg/presence"
	"github.com/teslashibe/go-focuscoach/pkg/presence/heuristic"
	"github.com/teslashibe/go-focuscoach/pkg/presence/landmark"
	"github.com/teslashibe/go-focuscoach/pkg/video"
)

// missingModel is a landmark loader whose model never becomes available.
type missingModel struct{ polls atomic.Int32 }

func (m *missingModel) Available() bool {
	m.polls.Add(1)
	return false
}

func (m *missingModel) Load() (landmark.Model, error) {
	panic("Load called on an unavailable model")
}

// litCanvas renders a raster whose lit share is the first JPEG byte in
// percent.
var litCanvas = heuristic.CanvasFunc(func(f video.Frame) ([]byte, int, error) {
	pix := make([]byte, 100)
	for i := 0; i < int(f.JPEG[0]) && i < 100; i++ {
		pix[i] = 255
	}
	return pix, 1, nil
})

// The model never loads: after the polling budget the heuristic detector
// takes over and drives the attention status without firing callbacks.
func TestModelNeverAvailableFallsBackToHeuristic(t *testing.T) {
	src := video.NewStatic()
	src.Push([]byte{60}, 640, 480)

	var callbacks atomic.Int32
	machine := attention.New(attention.DefaultConfig(), nil, attention.Callbacks{
		OnDistraction: func(attention.Event) { callbacks.Add(1) },
		OnRefocus:     func(attention.Event) { callbacks.Add(1) },
	})
	machine.Start(time.Now())

	loader := &missingModel{}
	lcfg := landmark.DefaultConfig()
	lcfg.PollInterval = time.Millisecond
	lcfg.PollAttempts = 50

	hcfg := heuristic.DefaultConfig()
	hcfg.FPS = 100

	s := New(Config{}, src, machine.Observe, Factories{
		Landmark: func(src video.Source) (presence.Detector, error) {
			return landmark.New(loader, src, lcfg, log.Discard()), nil
		},
		Heuristic: func(src video.Source) (presence.Detector, error) {
			return heuristic.New(src, presence.GateFunc(machine.Active), hcfg,
				heuristic.WithCanvas(litCanvas), heuristic.WithLogger(log.Discard())), nil
		},
	}, WithLogger(log.Discard()))
	defer s.Teardown()

	if got := machine.Snapshot().Status; got != attention.StatusChecking {
		t.Fatalf("status before tracking: got %s, want checking", got)
	}

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := loader.polls.Load(); got != 51 {
		t.Errorf("availability checks: got %d, want 51", got)
	}
	if s.State() != StateActiveHeuristic {
		t.Fatalf("State: got %s, want %s", s.State(), StateActiveHeuristic)
	}

	// One sampling interval is 10ms at 100 fps.
	waitFor(t, func() bool { return machine.Snapshot().Status == attention.StatusFocused })

	src.Push([]byte{2}, 640, 480)
	waitFor(t, func() bool { return !machine.Snapshot().Present })
	if got := machine.Snapshot().DisplayStatus(); got != attention.StatusDistracted {
		t.Errorf("display status when absent: got %s, want distracted", got)
	}

	if n := callbacks.Load(); n != 0 {
		t.Errorf("attention callbacks during failover: got %d, want 0", n)
	}
}
