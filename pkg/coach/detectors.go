package coach

import (
	"github.com/teslashibe/go-focuscoach/pkg/presence"
	"github.com/teslashibe/go-focuscoach/pkg/presence/heuristic"
	"github.com/teslashibe/go-focuscoach/pkg/presence/landmark"
	"github.com/teslashibe/go-focuscoach/pkg/supervisor"
	"github.com/teslashibe/go-focuscoach/pkg/video"
)

// detectorFactories builds the landmark and heuristic factories from the
// detector config. The landmark model comes from the fetcher when model
// download is enabled, otherwise straight from ModelPath.
func (a *App) detectorFactories() supervisor.Factories {
	d := a.cfg.Detector

	lcfg := landmark.DefaultConfig()
	if d.PumpWidth > 0 && d.PumpHeight > 0 {
		lcfg.Width, lcfg.Height = d.PumpWidth, d.PumpHeight
	}
	if d.PumpFPS > 0 {
		lcfg.FPS = d.PumpFPS
	}
	if d.PollInterval > 0 {
		lcfg.PollInterval = d.PollInterval
	}
	if d.PollAttempts > 0 {
		lcfg.PollAttempts = d.PollAttempts
	}
	if d.MinConfidence > 0 {
		lcfg.Options.MinDetectionConfidence = d.MinConfidence
	}

	var loader landmark.Loader = &landmark.FileLoader{Path: d.ModelPath}
	if a.fetcher != nil {
		loader = a.fetcher
	}

	hcfg := heuristic.DefaultConfig()
	if d.SampleFPS > 0 {
		hcfg.FPS = d.SampleFPS
	}
	gate := presence.GateFunc(a.machine.Active)

	var f supervisor.Factories
	if d.ModelPath != "" {
		f.Landmark = func(src video.Source) (presence.Detector, error) {
			return landmark.New(loader, src, lcfg, a.logger), nil
		}
	}
	f.Heuristic = func(src video.Source) (presence.Detector, error) {
		return heuristic.New(src, gate, hcfg, heuristic.WithLogger(a.logger), heuristic.WithClock(a.now)), nil
	}
	return f
}
