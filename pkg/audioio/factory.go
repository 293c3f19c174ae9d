package audioio

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/teslashibe/go-lightwall/internal/log"
)

// NewSource creates an audio source for cfg.Backend.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = log.Component("audio")
	}

	backend := resolve(cfg.Backend)
	logger.Info("creating audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendCommand:
		return NewCommandSource(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// NewSink creates an audio sink for cfg.Backend.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = log.Component("audio")
	}

	backend := resolve(cfg.Backend)
	logger.Info("creating audio sink",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
	)

	switch backend {
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	case BackendCommand:
		return NewCommandSink(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

func resolve(b Backend) Backend {
	if b != BackendAuto && b != "" {
		return b
	}
	switch runtime.GOOS {
	case "linux", "darwin":
		return BackendCommand
	default:
		return BackendMock
	}
}

// AvailableBackends returns the backends usable on this platform.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock}
	switch runtime.GOOS {
	case "linux", "darwin":
		backends = append(backends, BackendCommand)
	}
	return backends
}
