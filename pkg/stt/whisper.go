package stt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/teslashibe/go-lightwall/internal/log"
)

// whisper.cpp defaults.
const (
	DefaultWhisperDir   = "./whisper.cpp"
	DefaultWhisperModel = "large-v3-turbo"
	DefaultTimeout      = 60 * time.Second
)

// Runner executes a command and waits for it. Tests replace it.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[len(msg)-200:]
		}
		return fmt.Errorf("%s: %w: %s", filepath.Base(name), err, msg)
	}
	return nil
}

// CLIPath returns the whisper-cli binary inside a whisper.cpp checkout.
func CLIPath(dir string) string {
	return filepath.Join(dir, "build", "bin", "whisper-cli")
}

// ModelPath returns the ggml model file for a model name such as
// "large-v3-turbo" inside a whisper.cpp checkout.
func ModelPath(dir, model string) string {
	return filepath.Join(dir, "models", "ggml-"+model+".bin")
}

// WhisperCLI transcribes by running whisper.cpp's command line tool on a
// temporary WAV file and reading the text file it writes next to it.
type WhisperCLI struct {
	cli     string
	model   string
	workDir string
	timeout time.Duration
	run     Runner
	logger  *slog.Logger
}

// WhisperOption configures a WhisperCLI.
type WhisperOption func(*WhisperCLI)

// WithCLI sets the whisper-cli binary.
func WithCLI(path string) WhisperOption {
	return func(w *WhisperCLI) { w.cli = path }
}

// WithWorkDir sets where temporary WAV and text files are written.
func WithWorkDir(dir string) WhisperOption {
	return func(w *WhisperCLI) { w.workDir = dir }
}

// WithTimeout bounds each transcription.
func WithTimeout(d time.Duration) WhisperOption {
	return func(w *WhisperCLI) { w.timeout = d }
}

// WithRunner replaces command execution.
func WithRunner(r Runner) WhisperOption {
	return func(w *WhisperCLI) { w.run = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) WhisperOption {
	return func(w *WhisperCLI) { w.logger = l }
}

// NewWhisperCLI creates a transcriber using the ggml model at modelPath.
func NewWhisperCLI(modelPath string, opts ...WhisperOption) *WhisperCLI {
	w := &WhisperCLI{
		cli:     CLIPath(DefaultWhisperDir),
		model:   modelPath,
		timeout: DefaultTimeout,
		run:     execRunner,
		logger:  log.Component("stt.whisper"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Args returns the whisper-cli arguments for wavPath.
func (w *WhisperCLI) Args(wavPath string) []string {
	return []string{"-m", w.model, wavPath, "--output-txt"}
}

// Transcribe writes samples to a WAV file and runs whisper-cli on it.
func (w *WhisperCLI) Transcribe(ctx context.Context, samples []int16, rate int) (string, error) {
	if len(samples) == 0 {
		return "", ErrEmptyAudio
	}
	if rate <= 0 {
		return "", fmt.Errorf("stt: invalid sample rate %d", rate)
	}
	if w.model == "" {
		return "", ErrNoModel
	}

	f, err := os.CreateTemp(w.workDir, "utterance-*.wav")
	if err != nil {
		return "", fmt.Errorf("create wav: %w", err)
	}
	wavPath := f.Name()
	txtPath := wavPath + ".txt"
	defer os.Remove(wavPath)
	defer os.Remove(txtPath)

	if err := WriteWAV(f, samples, rate); err != nil {
		f.Close()
		return "", fmt.Errorf("write wav: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write wav: %w", err)
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := w.run(ctx, w.cli, w.Args(wavPath)...); err != nil {
		return "", fmt.Errorf("whisper-cli: %w", err)
	}

	data, err := os.ReadFile(txtPath)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	text := strings.Join(strings.Fields(string(data)), " ")
	w.logger.Debug("transcribed", "audio", time.Duration(len(samples))*time.Second/time.Duration(rate),
		"took", time.Since(start), "chars", len(text))
	return text, nil
}

var _ Transcriber = (*WhisperCLI)(nil)
