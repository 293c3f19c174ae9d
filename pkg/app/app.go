package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-lightwall/internal/log"
	"github.com/teslashibe/go-lightwall/pkg/actuator"
	"github.com/teslashibe/go-lightwall/pkg/audioio"
	"github.com/teslashibe/go-lightwall/pkg/conversation"
	"github.com/teslashibe/go-lightwall/pkg/director"
	"github.com/teslashibe/go-lightwall/pkg/engagement"
	"github.com/teslashibe/go-lightwall/pkg/hw"
	"github.com/teslashibe/go-lightwall/pkg/journal"
	"github.com/teslashibe/go-lightwall/pkg/personality"
	"github.com/teslashibe/go-lightwall/pkg/sequence"
	"github.com/teslashibe/go-lightwall/pkg/speech"
	"github.com/teslashibe/go-lightwall/pkg/web"
)

// healthTimeout bounds the startup reachability checks of remote backends.
const healthTimeout = 3 * time.Second

// App is the installation. It owns every component and their lifecycle.
type App struct {
	config Config
	logger *slog.Logger
	out    io.Writer

	personality personality.Personality

	// Hardware
	boards hw.Boards
	lights *actuator.LEDs
	motors *actuator.Motors

	// Presence
	distance   engagement.DistanceSource
	radarStart func(ctx context.Context)
	radarStop  func()
	poller     *engagement.Poller

	// Behaviour
	sequences *sequence.Set
	director  *director.Director

	// Voice
	voice *speech.Voice
	sink  audioio.Sink
	level atomic.Uint64 // float64 bits

	// Conversation
	session *conversation.Session

	// Records and dashboard
	journal *journal.Journal
	web     *web.Server

	started time.Time
	mu      sync.Mutex
	since   time.Time

	shutdown sync.Once
}

// New creates the application with the given configuration.
func New(cfg Config) (*App, error) {
	// Apply environment overrides
	cfg.LoadEnvConfig()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &App{
		config: cfg,
		logger: log.Component("app"),
		out:    os.Stdout,
	}, nil
}

// Config returns the configuration the app was built with.
func (a *App) Config() Config { return a.config }

// Init builds every component. Call it after New and before Run.
func (a *App) Init() error {
	a.printf("💡 Lightwall\n")
	a.printf("===========\n")
	if a.config.File != "" {
		a.printf("📄 Config: %s\n", a.config.File)
	}

	p, err := personality.Load(a.config.PersonalityDir, a.config.Personality)
	if err != nil {
		return fmt.Errorf("personality: %w", err)
	}
	a.personality = *p
	a.printf("🎭 Personality: %s (voice %s, rate %d)\n", p.Name, p.Voice, p.Speed)

	a.printf("🔌 Opening hardware... ")
	if err := a.initHardware(); err != nil {
		a.printf("❌\n")
		return fmt.Errorf("hardware: %w", err)
	}
	a.printf("✅ %d boards\n", len(a.boards))

	if err := a.initRadar(); err != nil {
		return fmt.Errorf("radar: %w", err)
	}
	a.printf("📡 Distance source: %s\n", a.config.Radar.Source)

	if err := a.initVoice(); err != nil {
		return fmt.Errorf("speech: %w", err)
	}
	a.printf("🗣️  Speech: %s\n", a.config.Speech.Backend)

	if a.config.Journal.Enabled {
		if err := a.initJournal(); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		a.printf("📓 Journal: %s\n", a.config.Journal.Path)
	}

	if a.config.Conversation.Enabled {
		if err := a.initConversation(); err != nil {
			return fmt.Errorf("conversation: %w", err)
		}
		a.printf("🧠 Conversation: %s + %s\n", a.config.STT.Backend, a.config.LLM.Backend)
	}

	a.initBehaviour()

	if a.config.Dashboard.Enabled {
		a.initDashboard()
	}

	a.initPoller()
	return nil
}

// Run starts the installation and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.started = time.Now()
	a.setSince(a.started)

	if a.radarStart != nil {
		a.radarStart(ctx)
	}
	if a.web != nil {
		a.web.StartAsync()
		a.printf("🌐 Dashboard: http://localhost:%s\n", a.config.Dashboard.Port)
	}

	a.director.Startup(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- a.poller.Run(ctx) }()

	a.printf("\n👀 Watching for visitors (Ctrl+C to exit)\n")

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

// Shutdown stops every component: the poller first so no new transitions
// arrive, then behaviour, then the devices. It is safe to call more than
// once and on a partially initialized app.
func (a *App) Shutdown() {
	a.shutdown.Do(func() {
		a.printf("\n👋 Goodbye!\n")

		if a.poller != nil {
			a.poller.Stop()
		}
		if a.director != nil {
			a.director.Shutdown()
		}
		if a.radarStop != nil {
			a.radarStop()
		}
		if a.web != nil {
			if err := a.web.Shutdown(); err != nil {
				a.logger.Warn("dashboard shutdown", "error", err)
			}
		}
		if a.journal != nil {
			if err := a.journal.Close(); err != nil {
				a.logger.Warn("journal close", "error", err)
			}
		}
		if a.sink != nil {
			if err := a.sink.Close(); err != nil {
				a.logger.Warn("audio sink close", "error", err)
			}
		}
		if a.lights != nil {
			a.lights.Close()
		}
		if a.motors != nil {
			a.motors.Close()
		}
		if a.boards != nil {
			if err := a.boards.Close(); err != nil {
				a.logger.Warn("closing boards", "error", err)
			}
		}
	})
}

// Status returns the dashboard view of the installation.
func (a *App) Status() web.Status {
	st := web.Status{
		State:       engagement.Idle.String(),
		Since:       a.sinceTime(),
		Personality: a.personality.Name,
		VoiceLevel:  math.Float64frombits(a.level.Load()),
	}
	if !a.started.IsZero() {
		st.Uptime = time.Since(a.started).Round(time.Second).String()
	}
	if a.poller != nil {
		snap := a.poller.Snapshot()
		st.State = snap.State.String()
		st.LastPresence = snap.LastPresence
		if snap.HasDistance {
			st.DistanceMM = snap.DistanceMM
		}
	}
	if a.sequences != nil {
		st.Sequences = a.sequences.Running()
	}
	if a.voice != nil {
		st.Speaking = a.voice.Active()
	}
	if a.journal != nil {
		st.Visit = a.journal.CurrentVisit()
	}
	if a.session != nil {
		stats := a.session.Stats()
		st.Session = &stats
		st.Listening = stats.Running
		if m := a.session.Orchestrator().Metrics().Current(); m.TurnID != "" {
			st.Latency = &m
		}
	}
	return st
}

// Say speaks text through the wall at the personality's rate.
func (a *App) Say(ctx context.Context, text string) error {
	return a.voice.Speak(ctx, text, a.personality.Speed)
}

// State returns the current engagement state.
func (a *App) State() engagement.State {
	if a.poller == nil {
		return engagement.Idle
	}
	return a.poller.State()
}

func (a *App) initHardware() error {
	m := hw.DefaultMap()
	if path := a.config.Hardware.Map; path != "" {
		loaded, err := hw.LoadMap(path)
		if err != nil {
			return err
		}
		m = loaded
	}

	if a.config.Hardware.Mock {
		a.boards, _ = hw.MockBoards(m)
	} else {
		boards, err := hw.Open(context.Background(), m, hw.OpenConfig{
			Discover:  a.config.Hardware.Discover,
			BootDelay: a.config.Hardware.BootDelay,
			Logger:    log.Component("hw"),
		})
		if err != nil {
			return err
		}
		a.boards = boards
	}

	opts := []actuator.Option{
		actuator.WithMinInterval(a.config.Hardware.MinInterval),
		actuator.WithLogger(log.Component("actuator")),
		actuator.WithBlankOnInit(true),
	}
	a.lights = actuator.NewLEDs(m, a.boards, opts...)
	if len(m.MotorAddresses()) > 0 {
		a.motors = actuator.NewMotors(m, a.boards, opts...)
	}
	return nil
}

func (a *App) initBehaviour() {
	deps := sequence.Deps{
		Lights: a.lights,
		Logger: log.Component("sequence"),
	}
	dcfg := director.Config{
		Lights:    a.lights,
		Speaker:   a.voice,
		Rate:      a.personality.Speed,
		Greetings: a.personality.Greetings,
		Farewells: a.personality.Farewells,
		OnSay:     a.onSay,
		Logger:    log.Component("director"),
	}
	if a.motors != nil {
		deps.Motors = a.motors
		dcfg.Motors = a.motors
	}
	if a.session != nil {
		dcfg.Conversation = a.session
	}

	a.sequences = sequence.NewSet(deps)
	dcfg.Sequences = a.sequences
	a.director = director.New(dcfg)
}

func (a *App) initJournal() error {
	path := a.config.Journal.Path
	if path != journal.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
	}
	j, err := journal.Open(path,
		journal.WithLogger(log.Component("journal")),
		journal.WithDistance(a.lastDistance),
	)
	if err != nil {
		return err
	}
	a.journal = j
	return nil
}

func (a *App) initDashboard() {
	cfg := web.Config{
		Port:   a.config.Dashboard.Port,
		Status: a.Status,
		Say:    a.Say,
		Logger: log.Component("web"),
	}
	if a.journal != nil {
		cfg.Journal = a.journal
	}
	a.web = web.NewServer(cfg)

	if a.session != nil {
		a.session.Orchestrator().AddObserver(a.web)
	}
}

func (a *App) initPoller() {
	handlers := engagement.Handlers{a.director}
	if a.journal != nil {
		handlers = append(handlers, a.journal)
	}
	handlers = append(handlers, engagement.HandlerFunc(a.onTransition))
	if a.web != nil {
		handlers = append(handlers, a.web)
	}

	a.poller = engagement.NewPoller(a.distance, handlers,
		engagement.WithInterval(a.config.Engagement.Interval),
		engagement.WithThresholds(a.config.Engagement.Thresholds()),
		engagement.WithLogger(log.Component("engagement")),
	)
}

func (a *App) onTransition(next, prev engagement.State) {
	a.setSince(time.Now())
	if next == engagement.Idle && a.web != nil {
		a.web.ClearConversation()
	}
}

func (a *App) onSay(text string) {
	if a.web != nil {
		a.web.AddConversation("wall", text)
	}
}

func (a *App) lastDistance() int {
	if a.poller == nil {
		return 0
	}
	d, ok := a.poller.LastDistance()
	if !ok {
		return 0
	}
	return d
}

func (a *App) setLevel(level float64) {
	a.level.Store(math.Float64bits(level))
}

func (a *App) setSince(t time.Time) {
	a.mu.Lock()
	a.since = t
	a.mu.Unlock()
}

func (a *App) sinceTime() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.since
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
