package audioio

import (
	"fmt"
	"log/slog"
)

// NewSink creates a sink for cfg.Backend. BackendAuto picks malgo when a
// playback context can be opened and falls back to the mock otherwise.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if cfg.Backend == "" {
		cfg.Backend = BackendAuto
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = BackendMock
		if err := probeMalgo(); err != nil {
			logger.Warn("no audio device, speech will not be audible", "error", err)
		} else {
			backend = BackendMalgo
		}
	}

	logger.Info("creating audio sink",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockSink(cfg), nil
	case BackendMalgo:
		cfg.Backend = BackendMalgo
		return NewMalgoSink(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}
