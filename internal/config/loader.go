package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"regexp"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/lingotutor/internal/reading"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "openai-compatible", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram", "console"},
	"tts": {"elevenlabs", "console"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultServiceName    = "lingotutor"
	DefaultLanguage       = "en-US"
	DefaultSourceLanguage = "ur-PK"
	DefaultRate           = 0.85
	DefaultMaxFailures    = 5
	DefaultResetTimeout   = 30 * time.Second
	DefaultSpeechProvider = "console"
)

// envRef matches ${VAR} references expanded by [Expand].
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadEnvFiles loads KEY=value pairs from the given .env files into the
// process environment. Missing files are skipped and variables that are
// already set are never overridden.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		err := godotenv.Load(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("config: load env file %q: %w", p, err)
		}
		slog.Debug("config: loaded env file", "path", p)
	}
	return nil
}

// Expand replaces every ${VAR} in data with the value of the environment
// variable VAR. Unset variables expand to the empty string and are reported
// in missing.
func Expand(data []byte) (expanded []byte, missing []string) {
	expanded = envRef.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := string(envRef.FindSubmatch(ref)[1])
		v, ok := os.LookupEnv(name)
		if !ok && !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
		return []byte(v)
	})
	return expanded, missing
}

// Load reads the YAML configuration file at path and returns a validated [Config]
// with defaults applied. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands environment references, decodes a YAML config from r,
// validates it and applies defaults. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	data, missing := Expand(raw)
	for _, name := range missing {
		slog.Warn("config: environment variable is not set", "var", name)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = append(errs, fmt.Errorf("telemetry.metrics_addr %q is not host:port: %w", addr, err))
		}
	}

	// Providers
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	// Reading
	if _, err := reading.ParseStrategy(cfg.Reading.Scoring); err != nil {
		errs = append(errs, fmt.Errorf("reading.scoring %q is invalid; valid values: monotonic, confidence", cfg.Reading.Scoring))
	}
	if cfg.Reading.Rate < 0 || cfg.Reading.Rate > 2 {
		errs = append(errs, fmt.Errorf("reading.rate %.2f is out of range (0, 2]", cfg.Reading.Rate))
	}

	// Circuit breaker
	if cfg.CircuitBreaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("circuit_breaker.max_failures %d must not be negative", cfg.CircuitBreaker.MaxFailures))
	}
	if cfg.CircuitBreaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("circuit_breaker.reset_timeout %s must not be negative", cfg.CircuitBreaker.ResetTimeout))
	}

	if cfg.Translate.Speak || cfg.Chat.Speak {
		if cfg.Providers.TTS.Name == "" {
			slog.Warn("speech output is enabled but providers.tts is not configured; using the console synthesizer")
		}
	}

	return errors.Join(errs...)
}

// ApplyDefaults fills every unset optional field of cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
	if cfg.Providers.STT.Name == "" {
		cfg.Providers.STT.Name = DefaultSpeechProvider
	}
	if cfg.Providers.TTS.Name == "" {
		cfg.Providers.TTS.Name = DefaultSpeechProvider
	}
	if cfg.Reading.Scoring == "" {
		cfg.Reading.Scoring = string(reading.StrategyMonotonic)
	}
	if cfg.Reading.Language == "" {
		cfg.Reading.Language = DefaultLanguage
	}
	if cfg.Reading.Rate == 0 {
		cfg.Reading.Rate = DefaultRate
	}
	if cfg.Reading.VoiceHints == nil {
		cfg.Reading.VoiceHints = []string{"female", "zira", "samantha"}
	}
	if cfg.Translate.SourceLanguage == "" {
		cfg.Translate.SourceLanguage = DefaultSourceLanguage
	}
	if cfg.Chat.Language == "" {
		cfg.Chat.Language = DefaultLanguage
	}
	if cfg.CircuitBreaker.MaxFailures == 0 {
		cfg.CircuitBreaker.MaxFailures = DefaultMaxFailures
	}
	if cfg.CircuitBreaker.ResetTimeout == 0 {
		cfg.CircuitBreaker.ResetTimeout = DefaultResetTimeout
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
