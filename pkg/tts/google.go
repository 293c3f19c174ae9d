package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"

	"github.com/teslashibe/go-lightwall/internal/httpc"
)

const providerGoogle = "google"

// DefaultGoogleVoice is used when no voice is configured.
const DefaultGoogleVoice = "en-US-Neural2-F"

// Google implements Provider with Google Cloud Text-to-Speech.
//
// Credentials come from, in order: an API key, an explicit token source,
// or Application Default Credentials.
type Google struct {
	config *Config
	svc    *texttospeech.Service
	logger *slog.Logger
}

// NewGoogle creates a Google Cloud TTS provider.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = DefaultGoogleVoice
	cfg.Apply(opts...)

	svcOpts := []option.ClientOption{}
	switch {
	case cfg.BaseURL != "":
		// test servers and proxies take no credentials
		svcOpts = append(svcOpts,
			option.WithEndpoint(strings.TrimSuffix(cfg.BaseURL, "/")+"/"),
			option.WithHTTPClient(httpc.NewClient(cfg.Timeout)),
		)
	case cfg.APIKey != "":
		svcOpts = append(svcOpts, option.WithAPIKey(cfg.APIKey))
	default:
		ts := cfg.TokenSource
		if ts == nil {
			var err error
			ts, err = google.DefaultTokenSource(ctx, texttospeech.CloudPlatformScope)
			if err != nil {
				return nil, WrapError(providerGoogle, fmt.Errorf("%w: %v", ErrNoAPIKey, err))
			}
		}
		svcOpts = append(svcOpts, option.WithTokenSource(oauth2.ReuseTokenSource(nil, ts)))
	}

	svc, err := texttospeech.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create service: %w", err))
	}

	return &Google{
		config: cfg,
		svc:    svc,
		logger: cfg.Logger.With("component", "tts.google"),
	}, nil
}

// Synthesize converts text to LINEAR16 audio.
func (g *Google) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, WrapError(providerGoogle, ErrEmptyText)
	}
	start := time.Now()

	voice := ResolveGoogleVoice(g.config.VoiceID)
	if req.Voice != "" {
		voice = ResolveGoogleVoice(req.Voice)
	}
	speed := req.Speed
	if speed == 0 {
		speed = 1.0
	}
	format := pcmFormat(g.config.OutputFormat)

	call := g.svc.Text.Synthesize(&texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: req.Text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: languageOf(voice, g.config.LanguageCode),
			Name:         voice,
		},
		AudioConfig: &texttospeech.AudioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: int64(format.SampleRate),
			SpeakingRate:    speed,
		},
	})

	var resp *texttospeech.SynthesizeSpeechResponse
	var err error
	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.config.RetryDelay * time.Duration(attempt)):
			}
		}
		resp, err = call.Context(ctx).Do()
		if err == nil {
			break
		}
		err = googleError(err)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return nil, err
		}
		g.logger.Warn("retrying request", "attempt", attempt+1, "status", apiErr.StatusCode)
	}
	if err != nil {
		return nil, err
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("decode audio: %w", err))
	}
	audio = stripWAVHeader(audio)
	if len(audio) == 0 {
		return nil, WrapError(providerGoogle, ErrEmptyAudio)
	}

	latency := time.Since(start).Milliseconds()
	g.logger.Debug("synthesized audio",
		"chars", len(req.Text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", voice,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    format,
		Duration:  pcmDuration(audio, format),
		CharCount: len(req.Text),
		LatencyMs: latency,
	}, nil
}

// Health lists the voices for the configured language.
func (g *Google) Health(ctx context.Context) error {
	if _, err := g.svc.Voices.List().LanguageCode(g.config.LanguageCode).Context(ctx).Do(); err != nil {
		return googleError(err)
	}
	return nil
}

// Close is a no-op; the service holds no long-lived connections.
func (g *Google) Close() error {
	return nil
}

// languageOf extracts the language code from a voice name such as
// "en-GB-Neural2-B".
func languageOf(voice, fallback string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) == 3 && len(parts[0]) == 2 && len(parts[1]) == 2 {
		return parts[0] + "-" + parts[1]
	}
	return fallback
}

func googleError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &APIError{
			StatusCode: gerr.Code,
			Message:    gerr.Message,
			Provider:   providerGoogle,
		}
	}
	return WrapError(providerGoogle, err)
}

// stripWAVHeader returns the data chunk of a RIFF/WAVE buffer, or b
// unchanged if it is not one.
func stripWAVHeader(b []byte) []byte {
	if len(b) < 12 || !bytes.Equal(b[0:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return b
	}
	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		pos += 8
		if id == "data" {
			end := min(len(b), pos+size)
			return b[pos:end]
		}
		pos += size + size%2
	}
	return nil
}

var _ Provider = (*Google)(nil)
