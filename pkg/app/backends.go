package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/teslashibe/go-lightwall/internal/log"
	"github.com/teslashibe/go-lightwall/pkg/audioio"
	"github.com/teslashibe/go-lightwall/pkg/conversation"
	"github.com/teslashibe/go-lightwall/pkg/inference"
	"github.com/teslashibe/go-lightwall/pkg/radar"
	"github.com/teslashibe/go-lightwall/pkg/speech"
	"github.com/teslashibe/go-lightwall/pkg/stt"
	"github.com/teslashibe/go-lightwall/pkg/tts"
)

// Replies used by the scripted backends of MockConfig.
const (
	mockTranscript = "hello wall"
	mockReply      = "Hello, traveller. The light has been waiting for you."
)

// ErrNoRadarBoard is returned when the serial radar source is selected but
// the hardware map has no radar board.
var ErrNoRadarBoard = errors.New("app: no radar board in hardware map")

func (a *App) initRadar() error {
	cfg := a.config.Radar
	logger := log.Component("radar")

	source := cfg.Source
	if source == RadarSerial && a.config.Hardware.Mock {
		logger.Warn("mock hardware has no radar, simulating a visitor")
		source = RadarSimulated
	}

	switch source {
	case RadarSerial:
		board, ok := a.boards.Radar()
		if !ok {
			return ErrNoRadarBoard
		}
		r := radar.NewReader(board,
			radar.WithPollInterval(cfg.PollInterval),
			radar.WithMaxAge(cfg.MaxAge),
			radar.WithReaderLogger(logger),
		)
		a.distance = r
		a.radarStart = r.Start
		a.radarStop = r.Stop
	case RadarBridge:
		b := radar.NewBridge(cfg.URL,
			radar.WithBridgeMaxAge(cfg.MaxAge),
			radar.WithBridgeLogger(logger),
		)
		a.distance = b
		a.radarStart = b.Start
		a.radarStop = b.Stop
	case RadarSimulated:
		a.distance = radar.NewSimulated(radar.DefaultVisit())
	case RadarStatic:
		a.distance = radar.NewStatic(cfg.DistanceMM)
	default:
		return fmt.Errorf("unknown radar source %q", source)
	}
	return nil
}

// initVoice builds the speaker and wraps it in the Voice that serializes
// phrases and tells the microphone when the wall is talking.
func (a *App) initVoice() error {
	inner, err := a.newSpeaker()
	if err != nil {
		return err
	}
	a.voice = speech.NewVoice(inner,
		speech.WithTail(a.config.Speech.EchoTail),
		speech.WithVoiceLogger(log.Component("speech")),
	)
	return nil
}

func (a *App) newSpeaker() (speech.Speaker, error) {
	cfg := a.config.Speech
	voice := cfg.Voice

	switch cfg.Backend {
	case BackendMock:
		return speech.NewMock(), nil
	case BackendCommand:
		if voice == "" {
			voice = a.personality.Voice
		}
		var opts []speech.CommandOption
		if len(cfg.Template) > 0 {
			opts = append(opts, speech.WithTemplate(cfg.Template))
		}
		return speech.NewCommand(voice, opts...), nil
	}

	provider, err := a.newTTS()
	if err != nil {
		return nil, err
	}
	a.checkHealth("tts", provider.Health)

	sink, err := audioio.NewSink(a.config.Audio, log.Component("audio"))
	if err != nil {
		return nil, fmt.Errorf("audio output: %w", err)
	}
	if err := sink.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("audio output: %w", err)
	}
	a.sink = sink

	opts := []speech.SynthesizedOption{speech.WithEnvelope(speech.NewEnvelope(a.setLevel))}
	if voice != "" {
		opts = append(opts, speech.WithVoiceName(voice))
	}
	return speech.NewSynthesized(provider, sink, opts...), nil
}

// newTTS builds the synthesizer, wrapped in a fallback chain when
// speech.fallback lists more backends.
func (a *App) newTTS() (tts.Provider, error) {
	cfg := a.config.Speech
	primary, err := a.buildTTS(cfg.Backend, cfg.URL, cfg.APIKey, googleVoice(cfg.Backend, cfg.Voice))
	if err != nil || len(cfg.Fallback) == 0 {
		return primary, err
	}

	backends := []tts.Backend{{Name: cfg.Backend, Provider: primary}}
	for _, f := range cfg.Fallback {
		p, err := a.buildTTS(f.Backend, f.URL, f.APIKey, f.Voice)
		if err != nil {
			return nil, fmt.Errorf("speech fallback %s: %w", f.Backend, err)
		}
		backends = append(backends, tts.Backend{Name: f.Backend, Provider: p})
	}
	return tts.NewChain(log.Component("tts"), backends...)
}

// googleVoice returns the voice a google primary is built with. Other
// primaries take the voice per request.
func googleVoice(backend, voice string) string {
	if backend == BackendGoogle {
		return voice
	}
	return ""
}

func (a *App) buildTTS(backend, url, apiKey, voice string) (tts.Provider, error) {
	opts := []tts.Option{tts.WithLogger(log.Component("tts"))}
	if apiKey != "" {
		opts = append(opts, tts.WithAPIKey(apiKey))
	}
	if url != "" {
		opts = append(opts, tts.WithBaseURL(url))
	}

	switch backend {
	case BackendOpenAI:
		if voice != "" {
			opts = append(opts, tts.WithVoice(voice))
		}
		return tts.NewOpenAI(opts...)
	case BackendGoogle:
		if voice != "" {
			opts = append(opts, tts.WithVoice(tts.ResolveGoogleVoice(voice)))
		}
		return tts.NewGoogle(context.Background(), opts...)
	}
	return nil, fmt.Errorf("unknown speech backend %q", backend)
}

func (a *App) initConversation() error {
	transcriber, err := a.newTranscriber()
	if err != nil {
		return err
	}
	llm, err := a.newProvider()
	if err != nil {
		return err
	}
	a.checkHealth("llm", llm.Health)

	cc := a.config.Conversation
	orch, err := conversation.NewOrchestrator(transcriber, llm, a.voice,
		conversation.WithSystemPrompt(a.personality.SystemPrompt),
		conversation.WithRate(a.personality.Speed),
		conversation.WithTimeouts(cc.TranscribeTimeout, cc.ChatTimeout),
		conversation.WithQuietDuration(cc.QuietDuration),
		conversation.WithLogger(log.Component("conversation")),
	)
	if err != nil {
		return err
	}
	if dir := a.config.Speech.ThinkingDir; dir != "" {
		orch.SetThinker(speech.NewThinking(dir, a.config.Speech.ThinkingTracks, speech.NewPlayer(nil)))
	}
	if a.journal != nil {
		orch.AddObserver(a.journal)
	}

	source, err := audioio.NewSource(a.config.Audio, log.Component("audio"))
	if err != nil {
		return fmt.Errorf("audio input: %w", err)
	}
	session, err := conversation.NewSession(source, orch, a.config.VAD, nil, a.voice)
	if err != nil {
		return err
	}
	a.session = session
	return nil
}

func (a *App) newTranscriber() (stt.Transcriber, error) {
	cfg := a.config.STT
	logger := log.Component("stt")

	switch cfg.Backend {
	case BackendMock:
		return stt.NewMock(mockTranscript), nil
	case BackendWhisper:
		return stt.NewWhisperCLI(stt.ModelPath(cfg.WhisperDir, cfg.Model),
			stt.WithCLI(stt.CLIPath(cfg.WhisperDir)),
			stt.WithTimeout(cfg.Timeout),
			stt.WithLogger(logger),
		), nil
	case BackendHTTP:
		model := cfg.Model
		if model == stt.DefaultWhisperModel {
			model = stt.DefaultHTTPModel
		}
		return stt.NewHTTP(cfg.URL,
			stt.WithAPIKey(cfg.APIKey),
			stt.WithModel(model),
			stt.WithHTTPLogger(logger),
		), nil
	}
	return nil, fmt.Errorf("unknown stt backend %q", cfg.Backend)
}

// newProvider builds the language model, wrapped in a fallback chain when
// llm.fallback lists more backends.
func (a *App) newProvider() (inference.Provider, error) {
	cfg := a.config.LLM
	primary, err := a.buildLLM(LLMFallback{Backend: cfg.Backend, URL: cfg.URL, APIKey: cfg.APIKey, Model: cfg.Model})
	if err != nil || len(cfg.Fallback) == 0 {
		return primary, err
	}

	backends := []inference.Backend{{Name: cfg.Backend, Provider: primary}}
	for _, f := range cfg.Fallback {
		p, err := a.buildLLM(f)
		if err != nil {
			return nil, fmt.Errorf("llm fallback %s: %w", f.Backend, err)
		}
		backends = append(backends, inference.Backend{Name: f.Backend, Provider: p})
	}
	return inference.NewChain(log.Component("inference"), backends...)
}

// buildLLM builds one backend. An empty model or URL keeps the backend's
// own default.
func (a *App) buildLLM(b LLMFallback) (inference.Provider, error) {
	cfg := a.config.LLM
	opts := []inference.Option{
		inference.WithTemperature(cfg.Temperature),
		inference.WithTopP(cfg.TopP),
		inference.WithTimeout(cfg.Timeout),
		inference.WithLogger(log.Component("inference")),
	}
	if b.Model != "" {
		opts = append(opts, inference.WithModel(b.Model))
	}
	if b.URL != "" {
		opts = append(opts, inference.WithBaseURL(b.URL))
	}

	switch b.Backend {
	case BackendMock:
		return inference.NewMockReply(mockReply), nil
	case BackendOllama:
		opts = append(opts,
			inference.WithContext(cfg.NumCtx, cfg.NumBatch),
			inference.WithKeepAlive(cfg.KeepAlive),
		)
		return inference.NewOllama(opts...)
	case BackendOpenAI:
		opts = append(opts, inference.WithAPIKey(b.APIKey))
		return inference.NewClient(opts...)
	}
	return nil, fmt.Errorf("unknown llm backend %q", b.Backend)
}

// checkHealth warns when a remote backend is unreachable at startup. The
// installation still starts; each turn retries the backend.
func (a *App) checkHealth(name string, health func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	if err := health(ctx); err != nil {
		a.printf("⚠️  %s unreachable: %v\n", name, err)
		a.logger.Warn("backend unreachable", "backend", name, "error", err)
	}
}
