package actuator

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-lightwall/pkg/hw"
)

// LEDState is a snapshot of one LED.
type LEDState struct {
	Address    string    `json:"address"`
	Index      int       `json:"index"`
	Status     Status    `json:"status"`
	Brightness int       `json:"brightness"`
	Previous   int       `json:"previous"`
	DurationMS int       `json:"duration_ms"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
}

type led struct {
	LEDState
	out   Sender
	gen   uint64
	timer *time.Timer
}

// LEDs controls every LED on the light boards.
type LEDs struct {
	opts     options
	throttle *Throttle
	logger   *slog.Logger

	mu   sync.Mutex
	leds map[string]*led
}

var _ LightDriver = (*LEDs)(nil)

// NewLEDs maps every light board entry with an open board to its LEDs.
// Entries whose board is not open are skipped.
func NewLEDs(m hw.Map, boards hw.Boards, opts ...Option) *LEDs {
	o := defaultOptions("actuator.leds")
	for _, opt := range opts {
		opt(&o)
	}

	c := &LEDs{
		opts:     o,
		throttle: newThrottle(o.minInterval, o.now, o.sleep),
		logger:   o.logger,
		leds:     make(map[string]*led),
	}

	for _, e := range m.OfType(hw.TypeLight) {
		b, ok := boards.Get(e.BoardName)
		if !ok {
			continue
		}
		c.logger.Info("configuring light board", "board", e.BoardName, "leds", len(e.Mapping))
		for addr, index := range e.Mapping {
			c.add(addr, index, b)
		}
	}

	c.logger.Info("LED controller initialized", "leds", len(c.leds))
	return c
}

func (c *LEDs) add(addr string, index int, out Sender) {
	l := &led{
		LEDState: LEDState{Address: addr, Index: index, Status: StatusOff},
		out:      out,
	}
	c.leds[addr] = l
	if c.opts.blank {
		c.send(l)
	}
}

// SetState sets brightness; it satisfies Driver.
func (c *LEDs) SetState(address string, value, durationMs int) error {
	return c.SetBrightness(address, value, durationMs)
}

// SetBrightness fades an LED to brightness (0-255) over durationMs.
// The LED reports StatusFading until the fade ends, unless a newer command
// to the same LED arrives first.
func (c *LEDs) SetBrightness(address string, brightness, durationMs int) error {
	c.mu.Lock()
	_, ok := c.leds[address]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: LED %s", ErrUnknownAddress, address)
	}

	c.throttle.Wait(address)

	c.mu.Lock()
	defer c.mu.Unlock()

	l := c.leds[address]
	now := c.opts.now()

	l.Previous = l.Brightness
	l.Brightness = clamp(brightness, 0, 255)
	l.DurationMS = max(0, durationMs)
	l.StartAt = now
	l.EndAt = now.Add(time.Duration(l.DurationMS) * time.Millisecond)

	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}

	if l.DurationMS == 0 {
		l.Status = settledLED(l.Brightness)
		return c.send(l)
	}

	l.Status = StatusFading
	err := c.send(l)

	gen := l.gen
	l.timer = time.AfterFunc(time.Duration(l.DurationMS)*time.Millisecond, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if l.gen != gen {
			return
		}
		l.Status = settledLED(l.Brightness)
		l.timer = nil
	})
	return err
}

func settledLED(brightness int) Status {
	if brightness > 0 {
		return StatusOn
	}
	return StatusOff
}

// send writes the LED's current command. Callers hold c.mu or own l exclusively.
func (c *LEDs) send(l *led) error {
	cmd := fmt.Sprintf("SET %d %d %d", l.Index, clamp(l.Brightness, 0, 255), max(0, l.DurationMS))
	if err := l.out.Send(cmd); err != nil {
		c.logger.Warn("LED write failed", "address", l.Address, "error", err)
		return err
	}
	return nil
}

// AllOff fades every LED to 0 over durationMs. Failures are logged.
func (c *LEDs) AllOff(durationMs int) {
	for _, addr := range c.Addresses() {
		if err := c.SetBrightness(addr, 0, durationMs); err != nil {
			c.logger.Warn("failed to switch LED off", "address", addr, "error", err)
		}
	}
}

// Addresses returns the configured LED addresses, sorted.
func (c *LEDs) Addresses() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.leds))
	for addr := range c.leds {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// State returns one LED's snapshot.
func (c *LEDs) State(address string) (LEDState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.leds[address]
	if !ok {
		return LEDState{}, false
	}
	return l.LEDState, true
}

// Snapshot returns every LED's state, sorted by address.
func (c *LEDs) Snapshot() []LEDState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LEDState, 0, len(c.leds))
	for _, l := range c.leds {
		out = append(out, l.LEDState)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Close cancels pending status timers.
func (c *LEDs) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.leds {
		l.gen++
		if l.timer != nil {
			l.timer.Stop()
			l.timer = nil
		}
	}
}
