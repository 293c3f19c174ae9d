package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/teslashibe/go-lightwall/pkg/engagement"
	"github.com/teslashibe/go-lightwall/pkg/inference"
	"github.com/teslashibe/go-lightwall/pkg/personality"
	"github.com/teslashibe/go-lightwall/pkg/sequence"
	"github.com/teslashibe/go-lightwall/pkg/tts"
)

const personalityDir = "../../personalities"

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	mock := MockConfig()
	if err := mock.Validate(); err != nil {
		t.Fatalf("mock config invalid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"no personality", func(c *Config) { c.Personality = " " }, "Personality"},
		{"unknown radar", func(c *Config) { c.Radar.Source = "sonar" }, "Radar.Source"},
		{"bridge without url", func(c *Config) { c.Radar.Source = RadarBridge }, "Radar.URL"},
		{"inverted thresholds", func(c *Config) { c.Engagement.EngagedMM = 5000 }, "Engagement"},
		{"zero interval", func(c *Config) { c.Engagement.Interval = 0 }, "Engagement.Interval"},
		{"bad audio", func(c *Config) { c.Audio.SampleRate = 0 }, "Audio"},
		{"http stt without url", func(c *Config) { c.STT.Backend = BackendHTTP }, "STT.URL"},
		{"unknown stt", func(c *Config) { c.STT.Backend = "vosk" }, "STT.Backend"},
		{"openai without key", func(c *Config) { c.LLM.Backend = BackendOpenAI }, "LLM.APIKey"},
		{"unknown llm", func(c *Config) { c.LLM.Backend = "llamafile" }, "LLM.Backend"},
		{"unknown speech", func(c *Config) { c.Speech.Backend = "festival" }, "Speech.Backend"},
		{"openai speech without key", func(c *Config) { c.Speech.Backend = BackendOpenAI }, "Speech.APIKey"},
		{"dashboard without port", func(c *Config) { c.Dashboard.Port = "" }, "Dashboard.Port"},
		{"unknown llm fallback", func(c *Config) {
			c.LLM.Fallback = []LLMFallback{{Backend: "llamafile"}}
		}, "LLM.Fallback"},
		{"openai llm fallback without key", func(c *Config) {
			c.LLM.Fallback = []LLMFallback{{Backend: BackendOpenAI}}
		}, "LLM.Fallback"},
		{"speech fallback behind command", func(c *Config) {
			c.Speech.Fallback = []SpeechFallback{{Backend: BackendOpenAI, APIKey: "sk-test"}}
		}, "Speech.Fallback"},
		{"speech fallback that cannot synthesize", func(c *Config) {
			c.Speech.Backend, c.Speech.APIKey = BackendOpenAI, "sk-test"
			c.Speech.Fallback = []SpeechFallback{{Backend: BackendCommand}}
		}, "Speech.Fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}
}

func TestValidateSkipsConversationWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Conversation.Enabled = false
	cfg.STT.Backend = "vosk"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("LIGHTWALL_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "lightwall.yaml")
	yaml := `
personality: poetic
radar:
  source: static
  distance_mm: 1200
engagement:
  exit_grace: 3s
llm:
  model: llama3.2
speech:
  template: [espeak, -v, "{voice}", "{text}"]
vad:
  end_silence_confirm: 750ms
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.File != path {
		t.Errorf("File = %q, want %q", cfg.File, path)
	}
	if cfg.Personality != "poetic" {
		t.Errorf("Personality = %q", cfg.Personality)
	}
	if cfg.Radar.Source != RadarStatic || cfg.Radar.DistanceMM != 1200 {
		t.Errorf("Radar = %+v", cfg.Radar)
	}
	if cfg.Engagement.ExitGrace != 3*time.Second {
		t.Errorf("ExitGrace = %v", cfg.Engagement.ExitGrace)
	}
	if cfg.Engagement.IdleMM != engagement.DefaultIdleMM {
		t.Errorf("IdleMM = %d, want default", cfg.Engagement.IdleMM)
	}
	if cfg.LLM.Model != "llama3.2" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if !slices.Equal(cfg.Speech.Template, []string{"espeak", "-v", "{voice}", "{text}"}) {
		t.Errorf("Template = %v", cfg.Speech.Template)
	}
	if cfg.VAD.EndSilenceConfirm != 750*time.Millisecond {
		t.Errorf("EndSilenceConfirm = %v", cfg.VAD.EndSilenceConfirm)
	}
	if cfg.VAD.MinUtterance != 600*time.Millisecond {
		t.Errorf("MinUtterance = %v, want default", cfg.VAD.MinUtterance)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LIGHTWALL_HOME", t.TempDir())
	t.Setenv("BASE_MODEL", "mistral")
	t.Setenv("NUM_CTX", "8192")
	t.Setenv("TEMPERATURE", "0.2")
	t.Setenv("SPEECH_RECOGNITION_MODEL", "base.en")
	t.Setenv("LIGHTWALL_PERSONALITY", "poetic")
	t.Setenv("LIGHTWALL_RADAR_SOURCE", "simulated")
	t.Setenv("LIGHTWALL_DASHBOARD_PORT", "9090")
	t.Setenv("OLLAMA_HOST", "gpu-box")
	t.Setenv("OLLAMA_PORT", "1234")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Model != "mistral" || cfg.LLM.NumCtx != 8192 || cfg.LLM.Temperature != 0.2 {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.LLM.URL != "http://gpu-box:1234" {
		t.Errorf("LLM.URL = %q", cfg.LLM.URL)
	}
	if cfg.STT.Model != "base.en" {
		t.Errorf("STT.Model = %q", cfg.STT.Model)
	}
	if cfg.Personality != "poetic" {
		t.Errorf("Personality = %q", cfg.Personality)
	}
	if cfg.Radar.Source != RadarSimulated {
		t.Errorf("Radar.Source = %q", cfg.Radar.Source)
	}
	if cfg.Dashboard.Port != "9090" {
		t.Errorf("Dashboard.Port = %q", cfg.Dashboard.Port)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("Load() = %v, want *ConfigError", err)
	}
}

func TestLoadEnvConfigAPIKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GOOGLE_API_KEY", "g-test")

	cfg := DefaultConfig()
	cfg.LLM.Backend = BackendOpenAI
	cfg.STT.Backend = BackendHTTP
	cfg.Speech.Backend = BackendGoogle
	cfg.LoadEnvConfig()

	if cfg.LLM.APIKey != "sk-test" || cfg.STT.APIKey != "sk-test" {
		t.Errorf("openai keys = %q, %q", cfg.LLM.APIKey, cfg.STT.APIKey)
	}
	if cfg.Speech.APIKey != "g-test" {
		t.Errorf("Speech.APIKey = %q", cfg.Speech.APIKey)
	}
}

func TestLoadEnvConfigFallbackKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GOOGLE_API_KEY", "g-test")

	cfg := DefaultConfig()
	cfg.LLM.Fallback = []LLMFallback{{Backend: BackendOpenAI}, {Backend: BackendOllama}}
	cfg.Speech.Fallback = []SpeechFallback{{Backend: BackendGoogle}, {Backend: BackendOpenAI, APIKey: "sk-own"}}
	cfg.LoadEnvConfig()

	if cfg.LLM.Fallback[0].APIKey != "sk-test" || cfg.LLM.Fallback[1].APIKey != "" {
		t.Errorf("llm fallback keys = %q, %q", cfg.LLM.Fallback[0].APIKey, cfg.LLM.Fallback[1].APIKey)
	}
	if cfg.Speech.Fallback[0].APIKey != "g-test" || cfg.Speech.Fallback[1].APIKey != "sk-own" {
		t.Errorf("speech fallback keys = %q, %q", cfg.Speech.Fallback[0].APIKey, cfg.Speech.Fallback[1].APIKey)
	}
}

func TestFallbackBackendsBuildChains(t *testing.T) {
	cfg := MockConfig()
	cfg.LLM.Fallback = []LLMFallback{{Backend: BackendOpenAI, APIKey: "sk-test", Model: "gpt-4o-mini"}}
	cfg.Speech.Backend, cfg.Speech.APIKey = BackendOpenAI, "sk-test"
	cfg.Speech.Fallback = []SpeechFallback{{Backend: BackendOpenAI, APIKey: "sk-test", Voice: "nova"}}
	a := &App{config: cfg}

	llm, err := a.newProvider()
	if err != nil {
		t.Fatalf("newProvider() = %v", err)
	}
	chain, ok := llm.(*inference.Chain)
	if !ok {
		t.Fatalf("newProvider() = %T, want *inference.Chain", llm)
	}
	if got := chain.Names(); !slices.Equal(got, []string{BackendMock, BackendOpenAI}) {
		t.Errorf("llm chain = %v", got)
	}

	synth, err := a.newTTS()
	if err != nil {
		t.Fatalf("newTTS() = %v", err)
	}
	if _, ok := synth.(*tts.Chain); !ok {
		t.Fatalf("newTTS() = %T, want *tts.Chain", synth)
	}

	cfg.LLM.Fallback = nil
	a = &App{config: cfg}
	if llm, _ := a.newProvider(); llm == nil {
		t.Fatal("newProvider() without fallbacks returned nil")
	} else if _, ok := llm.(*inference.Chain); ok {
		t.Error("single backend wrapped in a chain")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := MockConfig()
	cfg.Radar.Source = "sonar"
	if _, err := New(cfg); err == nil {
		t.Fatal("New() accepted an invalid config")
	}
}

func TestInitMissingPersonality(t *testing.T) {
	cfg := MockConfig()
	cfg.PersonalityDir = personalityDir
	cfg.Personality = "nobody"

	a := newTestApp(t, cfg)
	err := a.Init()
	if !errors.Is(err, personality.ErrNotFound) {
		t.Fatalf("Init() = %v, want ErrNotFound", err)
	}
}

func TestStatusBeforeRun(t *testing.T) {
	cfg := testConfig()
	a := newTestApp(t, cfg)
	if err := a.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	st := a.Status()
	if st.State != engagement.Idle.String() {
		t.Errorf("State = %q, want idle", st.State)
	}
	if st.Personality != "lightwall" {
		t.Errorf("Personality = %q", st.Personality)
	}
	if st.Session == nil || st.Session.Running {
		t.Errorf("Session = %+v, want stopped session", st.Session)
	}
	if st.Uptime != "" {
		t.Errorf("Uptime = %q before Run", st.Uptime)
	}
}

func TestRunMockInstallation(t *testing.T) {
	cfg := testConfig()
	a := newTestApp(t, cfg)
	if err := a.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitFor(t, "engaged and listening", func() bool {
		return a.State() == engagement.Engaged && a.session.Running()
	})

	st := a.Status()
	if !st.Listening {
		t.Error("Status.Listening = false while engaged")
	}
	if st.DistanceMM != 900 {
		t.Errorf("DistanceMM = %d, want 900", st.DistanceMM)
	}
	if !slices.Contains(st.Sequences, sequence.NameEngaged) {
		t.Errorf("Sequences = %v, want %s running", st.Sequences, sequence.NameEngaged)
	}
	if st.Visit == "" {
		t.Error("no journal visit open while engaged")
	}
	if st.Uptime == "" {
		t.Error("Uptime empty while running")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	a.Shutdown()
	a.Shutdown()
	if a.session.Running() {
		t.Error("session still listening after shutdown")
	}
	if running := a.sequences.Running(); len(running) != 0 {
		t.Errorf("sequences still running after shutdown: %v", running)
	}
}

func TestShutdownWithoutInit(t *testing.T) {
	a := newTestApp(t, testConfig())
	a.Shutdown()
}

// testConfig is a mock installation with a visitor standing close to the
// wall and no dashboard port.
func testConfig() Config {
	cfg := MockConfig()
	cfg.PersonalityDir = personalityDir
	cfg.Radar.Source = RadarStatic
	cfg.Radar.DistanceMM = 900
	cfg.Engagement.Interval = 10 * time.Millisecond
	cfg.Hardware.MinInterval = 0
	cfg.Dashboard.Enabled = false
	return cfg
}

func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	a.out = io.Discard
	return a
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
