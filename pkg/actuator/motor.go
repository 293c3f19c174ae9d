package actuator

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/teslashibe/go-lightwall/pkg/hw"
)

// RPM bounds accepted by the motor firmware.
const (
	MinRPM = 1
	MaxRPM = 100
)

// MotorState is a snapshot of one motor.
type MotorState struct {
	Address    string    `json:"address"`
	Board      string    `json:"board"`
	Status     Status    `json:"status"`
	Direction  Direction `json:"direction,omitempty"`
	RPM        int       `json:"rpm"`
	Position   int       `json:"position"`
	DurationMS int       `json:"duration_ms"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
}

type motor struct {
	MotorState
	out   Sender
	gen   uint64
	timer *time.Timer
}

// Motors controls the stepper motors, one board per motor.
type Motors struct {
	opts     options
	throttle *Throttle
	logger   *slog.Logger

	mu     sync.Mutex
	motors map[string]*motor
}

var _ MotorDriver = (*Motors)(nil)

// NewMotors maps every motor entry with an open board.
func NewMotors(m hw.Map, boards hw.Boards, opts ...Option) *Motors {
	o := defaultOptions("actuator.motors")
	for _, opt := range opts {
		opt(&o)
	}

	c := &Motors{
		opts:     o,
		throttle: newThrottle(o.minInterval, o.now, o.sleep),
		logger:   o.logger,
		motors:   make(map[string]*motor),
	}

	for _, e := range m.OfType(hw.TypeMotor) {
		b, ok := boards.Get(e.BoardName)
		if !ok {
			continue
		}
		c.motors[e.Address] = &motor{
			MotorState: MotorState{Address: e.Address, Board: e.BoardName, Status: StatusStopped},
			out:        b,
		}
		c.logger.Info("mapped motor", "address", e.Address, "board", e.BoardName)
	}

	c.logger.Info("motor controller initialized", "motors", len(c.motors))
	return c
}

// lock throttles the address, then takes the controller lock and cancels
// the motor's pending settle. The caller must unlock c.mu.
func (c *Motors) lock(address string) (*motor, error) {
	c.mu.Lock()
	_, ok := c.motors[address]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: motor %s", ErrUnknownAddress, address)
	}

	if waited := c.throttle.Wait(address); waited > 0 {
		c.logger.Debug("throttled motor command", "address", address, "waited", waited)
	}

	c.mu.Lock()
	m := c.motors[address]
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	return m, nil
}

// SetState moves to |value| over durationMs, clockwise for non-negative values.
func (c *Motors) SetState(address string, value, durationMs int) error {
	dir := CW
	if value < 0 {
		dir, value = CCW, -value
	}
	return c.MoveTo(address, dir, value, durationMs)
}

// Rotate starts continuous rotation. rpm is clamped to 1..100.
func (c *Motors) Rotate(address string, dir Direction, rpm int) error {
	if !dir.Valid() {
		return fmt.Errorf("actuator: invalid direction %q", dir)
	}
	m, err := c.lock(address)
	if err != nil {
		return err
	}
	defer c.mu.Unlock()

	now := c.opts.now()
	m.Direction = dir
	m.RPM = clamp(rpm, MinRPM, MaxRPM)
	m.Position = 0
	m.DurationMS = 0
	m.Status = StatusRotating
	m.StartAt = now
	m.EndAt = time.Time{}

	return c.send(m, fmt.Sprintf("ROT %s %d", dir, m.RPM))
}

// MoveTo steps to position over durationMs. The motor reports
// StatusStepping until the move ends, unless superseded.
func (c *Motors) MoveTo(address string, dir Direction, position, durationMs int) error {
	if !dir.Valid() {
		return fmt.Errorf("actuator: invalid direction %q", dir)
	}
	m, err := c.lock(address)
	if err != nil {
		return err
	}
	defer c.mu.Unlock()

	now := c.opts.now()
	m.Direction = dir
	m.Position = position
	m.DurationMS = max(0, durationMs)
	m.RPM = 0
	m.StartAt = now
	m.EndAt = now.Add(time.Duration(m.DurationMS) * time.Millisecond)

	err = c.send(m, fmt.Sprintf("STP %s %d %d", dir, position, m.DurationMS))

	if m.DurationMS == 0 {
		m.Status = StatusStopped
		return err
	}

	m.Status = StatusStepping
	gen := m.gen
	m.timer = time.AfterFunc(time.Duration(m.DurationMS)*time.Millisecond, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if m.gen != gen {
			return
		}
		m.Status = StatusStopped
		m.timer = nil
	})
	return err
}

// Stop halts the motor immediately.
func (c *Motors) Stop(address string) error {
	m, err := c.lock(address)
	if err != nil {
		return err
	}
	defer c.mu.Unlock()

	now := c.opts.now()
	m.Status = StatusStopped
	m.StartAt = now
	m.EndAt = now

	return c.send(m, "STOP")
}

func (c *Motors) send(m *motor, cmd string) error {
	if err := m.out.Send(cmd); err != nil {
		c.logger.Warn("motor write failed", "address", m.Address, "error", err)
		return err
	}
	return nil
}

// Home returns every motor to position 0, clockwise, over durationMs.
func (c *Motors) Home(durationMs int) {
	for _, addr := range c.Addresses() {
		if err := c.MoveTo(addr, CW, 0, durationMs); err != nil {
			c.logger.Warn("failed to home motor", "address", addr, "error", err)
		}
	}
}

// Addresses returns the configured motor addresses, sorted.
func (c *Motors) Addresses() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.motors))
	for addr := range c.motors {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// State returns one motor's snapshot.
func (c *Motors) State(address string) (MotorState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.motors[address]
	if !ok {
		return MotorState{}, false
	}
	return m.MotorState, true
}

// Snapshot returns every motor's state, sorted by address.
func (c *Motors) Snapshot() []MotorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MotorState, 0, len(c.motors))
	for _, m := range c.motors {
		out = append(out, m.MotorState)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Close cancels pending status timers.
func (c *Motors) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.motors {
		m.gen++
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
	}
}
