// Package config provides the configuration schema, loader, and provider registry
// for lingotutor.
package config

import (
	"time"

	"github.com/MrWong99/lingotutor/internal/reading"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for lingotutor.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	// LogLevel controls verbosity. Empty means info.
	LogLevel LogLevel `yaml:"log_level"`

	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	Providers      ProvidersConfig      `yaml:"providers"`
	Reading        ReadingConfig        `yaml:"reading"`
	Translate      TranslateConfig      `yaml:"translate"`
	Chat           ChatConfig           `yaml:"chat"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	// ServiceName is reported as the service.name resource attribute.
	// Defaults to "lingotutor".
	ServiceName string `yaml:"service_name"`

	// MetricsAddr, when set, serves Prometheus metrics on /metrics at this
	// local address (e.g., "127.0.0.1:9464").
	MetricsAddr string `yaml:"metrics_addr"`
}

// ProvidersConfig declares which provider implementation to use for each
// collaborator. Each entry selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order when the primary LLM fails.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// ReadingConfig configures the read-aloud screen.
type ReadingConfig struct {
	// Scoring selects the scoring strategy: "monotonic" (default) or "confidence".
	Scoring string `yaml:"scoring"`

	// Language is the BCP-47 language used for recognition and synthesis.
	// Defaults to "en-US".
	Language string `yaml:"language"`

	// Rate is the synthesis speaking rate in (0, 2]. Zero means 0.85.
	Rate float64 `yaml:"rate"`

	// VoiceHints are preferred voice name or attribute substrings.
	VoiceHints []string `yaml:"voice_hints"`

	// Phonetic enables lenient, sound-alike word matching.
	Phonetic bool `yaml:"phonetic"`
}

// Strategy returns the parsed scoring strategy. It assumes the config was
// validated.
func (r ReadingConfig) Strategy() reading.Strategy {
	s, _ := reading.ParseStrategy(r.Scoring)
	return s
}

// TranslateConfig configures the translate mode.
type TranslateConfig struct {
	// SourceLanguage is the recognition language for spoken input.
	// Defaults to "ur-PK".
	SourceLanguage string `yaml:"source_language"`

	// Speak reads the translation aloud.
	Speak bool `yaml:"speak"`
}

// ChatConfig configures the tutoring chat.
type ChatConfig struct {
	// Speak reads tutor replies aloud.
	Speak bool `yaml:"speak"`

	// Language is the dictation language. Defaults to "en-US".
	Language string `yaml:"language"`
}

// CircuitBreakerConfig tunes the breaker guarding the LLM.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Zero means 5.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long the breaker stays open. Zero means 30s.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}
