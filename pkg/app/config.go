// Package app builds the installation from configuration and runs it:
// hardware, radar, engagement, behaviour, conversation, journal and
// dashboard.
package app

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-lightwall/internal/config"
	"github.com/teslashibe/go-lightwall/pkg/audioio"
	"github.com/teslashibe/go-lightwall/pkg/engagement"
	"github.com/teslashibe/go-lightwall/pkg/inference"
	"github.com/teslashibe/go-lightwall/pkg/journal"
	"github.com/teslashibe/go-lightwall/pkg/personality"
	"github.com/teslashibe/go-lightwall/pkg/radar"
	"github.com/teslashibe/go-lightwall/pkg/speech"
	"github.com/teslashibe/go-lightwall/pkg/stt"
	"github.com/teslashibe/go-lightwall/pkg/vad"
)

// Radar sources.
const (
	RadarSerial    = "serial"
	RadarBridge    = "bridge"
	RadarSimulated = "simulated"
	RadarStatic    = "static"
)

// Backends shared by the speech, transcription and language model sections.
const (
	BackendMock    = "mock"
	BackendCommand = "command"
	BackendWhisper = "whisper"
	BackendHTTP    = "http"
	BackendOllama  = "ollama"
	BackendOpenAI  = "openai"
	BackendGoogle  = "google"
)

// EnvPrefix prefixes every automatically bound environment variable, so
// llm.model can be set with LIGHTWALL_LLM_MODEL.
const EnvPrefix = "LIGHTWALL"

// envBindings maps config keys to the environment names the installation
// has always used.
var envBindings = map[string]string{
	"llm.model":       "BASE_MODEL",
	"llm.num_ctx":     "NUM_CTX",
	"llm.num_batch":   "NUM_BATCH",
	"llm.temperature": "TEMPERATURE",
	"llm.top_p":       "TOP_P",
	"stt.model":       "SPEECH_RECOGNITION_MODEL",
	"personality":     "LIGHTWALL_PERSONALITY",
}

// Config holds all configuration for the installation.
// Flag parsing is done in cmd/lightwall; this struct is data only.
type Config struct {
	Personality    string `mapstructure:"personality" yaml:"personality"`
	PersonalityDir string `mapstructure:"personality_dir" yaml:"personality_dir"`
	LogLevel       string `mapstructure:"log_level" yaml:"log_level"`

	Hardware     HardwareConfig     `mapstructure:"hardware" yaml:"hardware"`
	Radar        RadarConfig        `mapstructure:"radar" yaml:"radar"`
	Engagement   EngagementConfig   `mapstructure:"engagement" yaml:"engagement"`
	Audio        audioio.Config     `mapstructure:"audio" yaml:"audio"`
	VAD          vad.Config         `mapstructure:"vad" yaml:"vad"`
	STT          STTConfig          `mapstructure:"stt" yaml:"stt"`
	LLM          LLMConfig          `mapstructure:"llm" yaml:"llm"`
	Speech       SpeechConfig       `mapstructure:"speech" yaml:"speech"`
	Conversation ConversationConfig `mapstructure:"conversation" yaml:"conversation"`
	Journal      JournalConfig      `mapstructure:"journal" yaml:"journal"`
	Dashboard    DashboardConfig    `mapstructure:"dashboard" yaml:"dashboard"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-" yaml:"-"`
}

// HardwareConfig selects the board map and how boards are opened.
type HardwareConfig struct {
	// Map is a YAML or JSON hardware map. Empty uses the built-in layout.
	Map string `mapstructure:"map" yaml:"map"`
	// Mock runs without serial hardware.
	Mock        bool          `mapstructure:"mock" yaml:"mock"`
	Discover    bool          `mapstructure:"discover" yaml:"discover"`
	BootDelay   time.Duration `mapstructure:"boot_delay" yaml:"boot_delay"`
	MinInterval time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
}

// RadarConfig selects the distance source.
type RadarConfig struct {
	Source       string        `mapstructure:"source" yaml:"source"`
	URL          string        `mapstructure:"url" yaml:"url"`
	DistanceMM   int           `mapstructure:"distance_mm" yaml:"distance_mm"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxAge       time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

// EngagementConfig tunes the state machine and the poller.
type EngagementConfig struct {
	IdleMM    int           `mapstructure:"idle_mm" yaml:"idle_mm"`
	EngagedMM int           `mapstructure:"engaged_mm" yaml:"engaged_mm"`
	ExitGrace time.Duration `mapstructure:"exit_grace" yaml:"exit_grace"`
	Interval  time.Duration `mapstructure:"interval" yaml:"interval"`
}

// Thresholds returns the engagement thresholds.
func (e EngagementConfig) Thresholds() engagement.Thresholds {
	return engagement.Thresholds{IdleMM: e.IdleMM, EngagedMM: e.EngagedMM, ExitGrace: e.ExitGrace}
}

// STTConfig selects the speech recognition backend.
type STTConfig struct {
	Backend    string        `mapstructure:"backend" yaml:"backend"`
	WhisperDir string        `mapstructure:"whisper_dir" yaml:"whisper_dir"`
	Model      string        `mapstructure:"model" yaml:"model"`
	URL        string        `mapstructure:"url" yaml:"url"`
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LLMConfig selects the language model backend.
type LLMConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	// URL defaults to the local Ollama server or the OpenAI API.
	URL         string        `mapstructure:"url" yaml:"url"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Model       string        `mapstructure:"model" yaml:"model"`
	NumCtx      int           `mapstructure:"num_ctx" yaml:"num_ctx"`
	NumBatch    int           `mapstructure:"num_batch" yaml:"num_batch"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float64       `mapstructure:"top_p" yaml:"top_p"`
	KeepAlive   string        `mapstructure:"keep_alive" yaml:"keep_alive"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Fallback backends are asked in order when the primary fails.
	Fallback []LLMFallback `mapstructure:"fallback" yaml:"fallback,omitempty"`
}

// LLMFallback is one fallback language model. Sampling settings are
// shared with the primary.
type LLMFallback struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	URL     string `mapstructure:"url" yaml:"url"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
}

// SpeechConfig selects how the wall speaks.
type SpeechConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Voice overrides the personality's voice.
	Voice    string   `mapstructure:"voice" yaml:"voice"`
	Template []string `mapstructure:"template" yaml:"template"`
	URL      string   `mapstructure:"url" yaml:"url"`
	APIKey   string   `mapstructure:"api_key" yaml:"api_key"`
	// EchoTail keeps the microphone deaf for a while after each phrase.
	EchoTail       time.Duration `mapstructure:"echo_tail" yaml:"echo_tail"`
	ThinkingDir    string        `mapstructure:"thinking_dir" yaml:"thinking_dir"`
	ThinkingTracks int           `mapstructure:"thinking_tracks" yaml:"thinking_tracks"`
	// Fallback synthesizers are tried in order when the primary fails.
	// Only the google and openai backends synthesize.
	Fallback []SpeechFallback `mapstructure:"fallback" yaml:"fallback,omitempty"`
}

// SpeechFallback is one fallback synthesizer with its own voice.
type SpeechFallback struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Voice   string `mapstructure:"voice" yaml:"voice"`
	URL     string `mapstructure:"url" yaml:"url"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
}

// ConversationConfig tunes the orchestrator.
type ConversationConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	TranscribeTimeout time.Duration `mapstructure:"transcribe_timeout" yaml:"transcribe_timeout"`
	ChatTimeout       time.Duration `mapstructure:"chat_timeout" yaml:"chat_timeout"`
	QuietDuration     time.Duration `mapstructure:"quiet_duration" yaml:"quiet_duration"`
}

// JournalConfig controls the visit journal.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// DashboardConfig controls the web dashboard.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    string `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns the installation defaults.
func DefaultConfig() Config {
	return Config{
		Personality:    config.DefaultPersonality,
		PersonalityDir: personality.DefaultDir,
		LogLevel:       "info",
		Hardware: HardwareConfig{
			Discover:    true,
			BootDelay:   2 * time.Second,
			MinInterval: 100 * time.Millisecond,
		},
		Radar: RadarConfig{
			Source:       RadarSerial,
			PollInterval: radar.DefaultPollInterval,
			MaxAge:       time.Second,
		},
		Engagement: EngagementConfig{
			IdleMM:    engagement.DefaultIdleMM,
			EngagedMM: engagement.DefaultEngagedMM,
			ExitGrace: engagement.DefaultExitGrace,
			Interval:  engagement.DefaultPollInterval,
		},
		Audio: audioio.DefaultConfig(),
		VAD:   vad.DefaultConfig(),
		STT: STTConfig{
			Backend:    BackendWhisper,
			WhisperDir: stt.DefaultWhisperDir,
			Model:      stt.DefaultWhisperModel,
			Timeout:    stt.DefaultTimeout,
		},
		LLM: LLMConfig{
			Backend:     BackendOllama,
			Model:       inference.DefaultOllamaModel,
			NumCtx:      inference.DefaultNumCtx,
			NumBatch:    inference.DefaultNumBatch,
			Temperature: 0.6,
			TopP:        0.9,
			KeepAlive:   inference.DefaultKeepAlive,
			Timeout:     30 * time.Second,
		},
		Speech: SpeechConfig{
			Backend:        BackendCommand,
			EchoTail:       300 * time.Millisecond,
			ThinkingTracks: speech.DefaultThinkingTracks,
		},
		Conversation: ConversationConfig{
			Enabled:           true,
			TranscribeTimeout: 60 * time.Second,
			ChatTimeout:       30 * time.Second,
			QuietDuration:     200 * time.Millisecond,
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    config.JournalPath(),
		},
		Dashboard: DashboardConfig{
			Enabled: true,
			Port:    config.DefaultDashboard,
		},
	}
}

// MockConfig returns a configuration that needs no hardware, microphone or
// network: a simulated visitor walks past and every backend is scripted.
func MockConfig() Config {
	c := DefaultConfig()
	c.UseMocks()
	return c
}

// UseMocks switches every device and backend to its stand-in.
func (c *Config) UseMocks() {
	c.Hardware.Mock = true
	c.Radar.Source = RadarSimulated
	c.Audio.Backend = audioio.BackendMock
	c.STT.Backend = BackendMock
	c.LLM.Backend = BackendMock
	c.Speech.Backend = BackendMock
	c.Journal.Path = journal.MemoryPath
}

// Load reads the configuration. An empty path searches for lightwall.yaml
// in the working directory and then in the lightwall home directory; a
// missing file there is not an error. Environment variables override the
// file.
func Load(path string) (Config, error) {
	return load(DefaultConfig(), path)
}

func load(base Config, path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Seeding every key from the defaults lets AutomaticEnv find all of them.
	defaults, err := yaml.Marshal(base)
	if err != nil {
		return Config{}, fmt.Errorf("encoding defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, fmt.Errorf("reading defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(config.DefaultConfigName)
		v.AddConfigPath(".")
		v.AddConfigPath(config.Home())
	}
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, &ConfigError{Field: "config", Message: fmt.Sprintf("reading %s: %v", describe(path), err)}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	cfg := base
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, &ConfigError{Field: "config", Message: fmt.Sprintf("decoding configuration: %v", err)}
	}
	cfg.File = v.ConfigFileUsed()
	cfg.LoadEnvConfig()
	return cfg, nil
}

func describe(path string) string {
	if path == "" {
		return config.DefaultConfigName + ".yaml"
	}
	return filepath.Base(path)
}

// LoadEnvConfig applies the environment variables that do not map onto a
// single key: the Ollama host and port, and provider API keys.
func (c *Config) LoadEnvConfig() {
	_, host := os.LookupEnv("OLLAMA_HOST")
	_, port := os.LookupEnv("OLLAMA_PORT")
	if (host || port) && c.LLM.Backend == BackendOllama {
		c.LLM.URL = config.OllamaURL()
	}

	key := os.Getenv("OPENAI_API_KEY")
	if c.LLM.APIKey == "" && c.LLM.Backend == BackendOpenAI {
		c.LLM.APIKey = key
	}
	for i := range c.LLM.Fallback {
		if f := &c.LLM.Fallback[i]; f.APIKey == "" && f.Backend == BackendOpenAI {
			f.APIKey = key
		}
	}
	if c.STT.APIKey == "" && c.STT.Backend == BackendHTTP {
		c.STT.APIKey = key
	}
	if c.Speech.APIKey == "" {
		c.Speech.APIKey = speechKey(c.Speech.Backend)
	}
	for i := range c.Speech.Fallback {
		if f := &c.Speech.Fallback[i]; f.APIKey == "" {
			f.APIKey = speechKey(f.Backend)
		}
	}
}

func speechKey(backend string) string {
	switch backend {
	case BackendOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case BackendGoogle:
		return os.Getenv("GOOGLE_API_KEY")
	}
	return ""
}

// Validate checks that the configuration describes a runnable installation.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Personality) == "" {
		return &ConfigError{Field: "Personality", Message: "a personality name is required (LIGHTWALL_PERSONALITY)"}
	}

	switch c.Radar.Source {
	case RadarSerial, RadarSimulated:
	case RadarBridge:
		if c.Radar.URL == "" {
			return &ConfigError{Field: "Radar.URL", Message: "radar.url is required for the bridge radar source"}
		}
	case RadarStatic:
		if c.Radar.DistanceMM < 0 {
			return &ConfigError{Field: "Radar.DistanceMM", Message: "radar.distance_mm cannot be negative"}
		}
	default:
		return &ConfigError{Field: "Radar.Source", Message: fmt.Sprintf("unknown radar source %q", c.Radar.Source)}
	}

	if err := c.Engagement.Thresholds().Validate(); err != nil {
		return &ConfigError{Field: "Engagement", Message: err.Error()}
	}
	if c.Engagement.Interval <= 0 {
		return &ConfigError{Field: "Engagement.Interval", Message: "engagement.interval must be positive"}
	}

	if !c.Conversation.Enabled {
		return c.validateSpeech()
	}

	if err := c.Audio.Validate(); err != nil {
		return &ConfigError{Field: "Audio", Message: err.Error()}
	}
	if err := c.VAD.Validate(); err != nil {
		return &ConfigError{Field: "VAD", Message: err.Error()}
	}

	switch c.STT.Backend {
	case BackendWhisper, BackendMock:
	case BackendHTTP:
		if c.STT.URL == "" {
			return &ConfigError{Field: "STT.URL", Message: "stt.url is required for the http transcriber"}
		}
	default:
		return &ConfigError{Field: "STT.Backend", Message: fmt.Sprintf("unknown stt backend %q", c.STT.Backend)}
	}

	switch c.LLM.Backend {
	case BackendOllama, BackendMock:
	case BackendOpenAI:
		if c.LLM.APIKey == "" {
			return &ConfigError{Field: "LLM.APIKey", Message: "OPENAI_API_KEY environment variable is required for the openai backend"}
		}
	default:
		return &ConfigError{Field: "LLM.Backend", Message: fmt.Sprintf("unknown llm backend %q", c.LLM.Backend)}
	}
	for i, f := range c.LLM.Fallback {
		switch f.Backend {
		case BackendOllama, BackendMock:
		case BackendOpenAI:
			if f.APIKey == "" {
				return &ConfigError{Field: "LLM.Fallback", Message: fmt.Sprintf("llm.fallback[%d]: OPENAI_API_KEY environment variable is required for the openai backend", i)}
			}
		default:
			return &ConfigError{Field: "LLM.Fallback", Message: fmt.Sprintf("llm.fallback[%d]: unknown llm backend %q", i, f.Backend)}
		}
	}

	return c.validateSpeech()
}

func (c *Config) validateSpeech() error {
	switch c.Speech.Backend {
	case BackendCommand, BackendMock, BackendGoogle:
	case BackendOpenAI:
		if c.Speech.APIKey == "" {
			return &ConfigError{Field: "Speech.APIKey", Message: "OPENAI_API_KEY environment variable is required for openai speech"}
		}
	default:
		return &ConfigError{Field: "Speech.Backend", Message: fmt.Sprintf("unknown speech backend %q", c.Speech.Backend)}
	}
	if len(c.Speech.Fallback) > 0 && !synthesizes(c.Speech.Backend) {
		return &ConfigError{Field: "Speech.Fallback", Message: fmt.Sprintf("speech.fallback needs a google or openai primary, not %q", c.Speech.Backend)}
	}
	for i, f := range c.Speech.Fallback {
		if !synthesizes(f.Backend) {
			return &ConfigError{Field: "Speech.Fallback", Message: fmt.Sprintf("speech.fallback[%d]: %q cannot synthesize", i, f.Backend)}
		}
		if f.Backend == BackendOpenAI && f.APIKey == "" {
			return &ConfigError{Field: "Speech.Fallback", Message: fmt.Sprintf("speech.fallback[%d]: OPENAI_API_KEY environment variable is required for openai speech", i)}
		}
	}
	if c.Dashboard.Enabled && c.Dashboard.Port == "" {
		return &ConfigError{Field: "Dashboard.Port", Message: "dashboard.port is required when the dashboard is enabled"}
	}
	return nil
}

func synthesizes(backend string) bool {
	return backend == BackendGoogle || backend == BackendOpenAI
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}
