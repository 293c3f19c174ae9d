package hw

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"go.bug.st/serial"

	"github.com/teslashibe/go-lightwall/internal/log"
)

// DefaultProbePatterns are the device globs probed during discovery.
var DefaultProbePatterns = []string{"/dev/cu.usb*", "/dev/ttyUSB*", "/dev/ttyACM*"}

// OpenFunc opens a serial port. Tests replace it with a mock.
type OpenFunc func(port string, baud int) (io.ReadWriteCloser, error)

// OpenSerial opens a real serial port at 8N1.
func OpenSerial(port string, baud int) (io.ReadWriteCloser, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("hw: open %s: %w", port, err)
	}
	if err := p.SetReadTimeout(100 * time.Millisecond); err != nil {
		p.Close()
		return nil, fmt.Errorf("hw: set read timeout on %s: %w", port, err)
	}
	return p, nil
}

// ListPorts returns the serial ports present on this machine, sorted.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("hw: list ports: %w", err)
	}
	sort.Strings(ports)
	return ports, nil
}

// OpenConfig controls how boards are opened.
type OpenConfig struct {
	// Open opens one port. Defaults to OpenSerial.
	Open OpenFunc
	// List enumerates candidate ports for discovery. Defaults to ListPorts.
	List func() ([]string, error)
	// Patterns filters the listed ports. Defaults to DefaultProbePatterns.
	Patterns []string
	// BootDelay lets a board finish resetting after the port opens.
	BootDelay time.Duration
	// ReplyTimeout bounds the NAME handshake.
	ReplyTimeout time.Duration
	// Discover probes unassigned ports for boards without a configured port.
	Discover bool
	Logger   *slog.Logger
}

func (c *OpenConfig) applyDefaults() {
	if c.Open == nil {
		c.Open = OpenSerial
	}
	if c.List == nil {
		c.List = ListPorts
	}
	if len(c.Patterns) == 0 {
		c.Patterns = DefaultProbePatterns
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = DefaultReadTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Component("hw")
	}
}

// Open opens every board in the map.
//
// Boards with an explicit port are opened directly. When discovery is on,
// the remaining candidate ports are probed with NAME and matched to the
// board that answers. Boards that cannot be found are logged and skipped;
// Open fails only when no board at all could be opened.
func Open(ctx context.Context, m Map, cfg OpenConfig) (Boards, error) {
	cfg.applyDefaults()
	logger := cfg.Logger

	boards := make(Boards)
	used := make(map[string]bool)

	for _, e := range m {
		if e.Port == "" {
			continue
		}
		conn, err := cfg.Open(e.Port, e.BaudRate())
		if err != nil {
			logger.Error("failed to open board", "board", e.BoardName, "port", e.Port, "error", err)
			continue
		}
		boards[e.BoardName] = NewBoard(e, conn)
		used[e.Port] = true
		logger.Info("board opened", "board", e.BoardName, "type", e.Type, "port", e.Port)
	}

	if cfg.Discover && len(boards) < len(m) {
		if err := discover(ctx, m, boards, used, cfg); err != nil {
			logger.Warn("discovery failed", "error", err)
		}
	}

	var missing []string
	for _, e := range m {
		if _, ok := boards[e.BoardName]; !ok {
			missing = append(missing, e.BoardName)
		}
	}
	if len(missing) > 0 {
		logger.Warn("no connected device for boards", "boards", missing)
	}

	if len(boards) == 0 {
		return nil, fmt.Errorf("hw: no boards could be opened")
	}
	return boards, nil
}

func discover(ctx context.Context, m Map, boards Boards, used map[string]bool, cfg OpenConfig) error {
	logger := cfg.Logger

	ports, err := cfg.List()
	if err != nil {
		return err
	}

	var candidates []string
	for _, p := range ports {
		if used[p] || !matchesAny(p, cfg.Patterns) {
			continue
		}
		candidates = append(candidates, p)
	}
	logger.Info("probing candidate ports", "count", len(candidates))

	for _, port := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn, err := cfg.Open(port, DefaultBaud)
		if err != nil {
			logger.Warn("failed to open candidate port", "port", port, "error", err)
			continue
		}

		if cfg.BootDelay > 0 {
			select {
			case <-ctx.Done():
				conn.Close()
				return ctx.Err()
			case <-time.After(cfg.BootDelay):
			}
		}

		probe := NewBoard(Entry{BoardName: port}, conn)
		name, err := probe.Query("NAME", cfg.ReplyTimeout)
		if err != nil || name == "" {
			logger.Warn("no NAME response", "port", port, "error", err)
			conn.Close()
			continue
		}

		e, ok := m.Find(name)
		if !ok {
			logger.Warn("unrecognized device", "name", name, "port", port)
			conn.Close()
			continue
		}
		if _, taken := boards[name]; taken {
			logger.Warn("board already opened, ignoring duplicate", "name", name, "port", port)
			conn.Close()
			continue
		}

		e.Port = port
		boards[name] = NewBoard(e, conn)
		logger.Info("matched board", "board", name, "type", e.Type, "port", port)
	}
	return nil
}

func matchesAny(port string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, port); ok {
			return true
		}
	}
	return false
}
