package speech

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/teslashibe/go-lightwall/internal/log"
)

// Player plays sound files with an external program.
type Player struct {
	program string
	run     Runner
}

// NewPlayer creates a player using afplay on macOS and aplay elsewhere.
func NewPlayer(run Runner) *Player {
	if run == nil {
		run = execRunner
	}
	program := "aplay"
	if runtime.GOOS == "darwin" {
		program = "afplay"
	}
	return &Player{program: program, run: run}
}

// Play blocks until path has played or ctx is cancelled.
func (p *Player) Play(ctx context.Context, path string) error {
	if p.program == "aplay" {
		return p.run(ctx, p.program, "-q", path)
	}
	return p.run(ctx, p.program, path)
}

// DefaultThinkingTracks is the number of numbered thinking tracks.
const DefaultThinkingTracks = 100

// Thinking plays a random ambient track while the language model works.
// Tracks live at <dir>/wonder/wonder-NNN-stereo.wav.
type Thinking struct {
	dir    string
	tracks int
	player *Player
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewThinking creates a thinking-audio source. An empty dir disables it.
func NewThinking(dir string, tracks int, player *Player) *Thinking {
	if tracks <= 0 {
		tracks = DefaultThinkingTracks
	}
	return &Thinking{
		dir:    dir,
		tracks: tracks,
		player: player,
		logger: log.Component("speech.thinking"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Track returns the path of track n.
func (t *Thinking) Track(n int) string {
	return filepath.Join(t.dir, "wonder", fmt.Sprintf("wonder-%03d-stereo.wav", n))
}

// Start begins a random track in the background. The returned function
// stops playback and waits for the player to exit.
func (t *Thinking) Start(ctx context.Context) (stop func()) {
	if t == nil || t.dir == "" || t.player == nil {
		return func() {}
	}

	t.mu.Lock()
	path := t.Track(1 + t.rng.Intn(t.tracks))
	t.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		t.logger.Debug("thinking track missing", "path", path)
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.logger.Info("starting thinking audio", "path", path)
	go func() {
		defer close(done)
		if err := t.player.Play(ctx, path); err != nil && ctx.Err() == nil {
			t.logger.Warn("thinking audio failed", "path", path, "error", err)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.logger.Warn("thinking audio did not stop")
			}
		})
	}
}
