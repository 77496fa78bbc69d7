package config_test

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/lingotutor/internal/config"
	"github.com/MrWong99/lingotutor/internal/reading"
)

const sampleYAML = `
log_level: debug
telemetry:
  service_name: tutor-dev
  metrics_addr: 127.0.0.1:9464
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  llm_fallbacks:
    - name: gemini
      api_key: g-test
      model: gemini-2.0-flash
  stt:
    name: deepgram
    api_key: dg-test
    model: nova-2
  tts:
    name: elevenlabs
    api_key: el-test
    options:
      voice_id: rachel
reading:
  scoring: confidence
  language: en-GB
  rate: 0.9
  voice_hints: [daniel]
  phonetic: true
translate:
  source_language: ur-PK
  speak: true
chat:
  speak: true
circuit_breaker:
  max_failures: 3
  reset_timeout: 10s
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q, want debug", cfg.LogLevel)
	}
	if cfg.Telemetry.MetricsAddr != "127.0.0.1:9464" || cfg.Telemetry.ServiceName != "tutor-dev" {
		t.Errorf("telemetry: got %+v", cfg.Telemetry)
	}
	if cfg.Providers.LLM.Model != "gpt-4o-mini" || len(cfg.Providers.LLMFallbacks) != 1 {
		t.Errorf("llm providers: got %+v / %+v", cfg.Providers.LLM, cfg.Providers.LLMFallbacks)
	}
	if cfg.Providers.TTS.Options["voice_id"] != "rachel" {
		t.Errorf("tts options: got %v", cfg.Providers.TTS.Options)
	}
	if cfg.Reading.Strategy() != reading.StrategyConfidence || cfg.Reading.Rate != 0.9 || !cfg.Reading.Phonetic {
		t.Errorf("reading: got %+v", cfg.Reading)
	}
	if !slices.Equal(cfg.Reading.VoiceHints, []string{"daniel"}) {
		t.Errorf("voice_hints: got %v", cfg.Reading.VoiceHints)
	}
	if cfg.CircuitBreaker.MaxFailures != 3 || cfg.CircuitBreaker.ResetTimeout != 10*time.Second {
		t.Errorf("circuit_breaker: got %+v", cfg.CircuitBreaker)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("providers:\n  llm:\n    name: openai\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.LogLevel)
	}
	if cfg.Telemetry.ServiceName != "lingotutor" {
		t.Errorf("service_name = %q", cfg.Telemetry.ServiceName)
	}
	if cfg.Providers.STT.Name != "console" || cfg.Providers.TTS.Name != "console" {
		t.Errorf("speech providers = %q/%q, want console", cfg.Providers.STT.Name, cfg.Providers.TTS.Name)
	}
	if cfg.Reading.Strategy() != reading.StrategyMonotonic || cfg.Reading.Language != "en-US" || cfg.Reading.Rate != 0.85 {
		t.Errorf("reading = %+v", cfg.Reading)
	}
	if !slices.Equal(cfg.Reading.VoiceHints, []string{"female", "zira", "samantha"}) {
		t.Errorf("voice_hints = %v", cfg.Reading.VoiceHints)
	}
	if cfg.Translate.SourceLanguage != "ur-PK" || cfg.Chat.Language != "en-US" {
		t.Errorf("languages = %q/%q", cfg.Translate.SourceLanguage, cfg.Chat.Language)
	}
	if cfg.CircuitBreaker.MaxFailures != 5 || cfg.CircuitBreaker.ResetTimeout != 30*time.Second {
		t.Errorf("circuit_breaker = %+v", cfg.CircuitBreaker)
	}
}

func TestLoadFromReader_ExpandsEnvironment(t *testing.T) {
	t.Setenv("LINGOTUTOR_TEST_KEY", "sk-from-env")

	yaml := `
providers:
  llm:
    name: openai
    api_key: ${LINGOTUTOR_TEST_KEY}
    base_url: ${LINGOTUTOR_TEST_UNSET}
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q, want sk-from-env", cfg.Providers.LLM.APIKey)
	}
	if cfg.Providers.LLM.BaseURL != "" {
		t.Errorf("base_url = %q, want empty for an unset variable", cfg.Providers.LLM.BaseURL)
	}
}

func TestExpand_ReportsMissingOnce(t *testing.T) {
	t.Setenv("LINGOTUTOR_TEST_SET", "x")

	out, missing := config.Expand([]byte("a: ${LINGOTUTOR_TEST_SET}\nb: ${NOPE_1}\nc: ${NOPE_1}\nd: $PLAIN"))
	if string(out) != "a: x\nb: \nc: \nd: $PLAIN" {
		t.Errorf("expanded = %q", out)
	}
	if !slices.Equal(missing, []string{"NOPE_1"}) {
		t.Errorf("missing = %v, want [NOPE_1]", missing)
	}
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("LINGOTUTOR_DOTENV=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LINGOTUTOR_DOTENV", "")
	os.Unsetenv("LINGOTUTOR_DOTENV")

	if err := config.LoadEnvFiles(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadEnvFiles: %v", err)
	}
	if got := os.Getenv("LINGOTUTOR_DOTENV"); got != "loaded" {
		t.Errorf("LINGOTUTOR_DOTENV = %q, want loaded", got)
	}
}

func TestLoad_FileErrors(t *testing.T) {
	t.Parallel()

	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-example")
	t.Setenv("GEMINI_API_KEY", "gm-example")

	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "sk-example" || len(cfg.Providers.LLMFallbacks) != 1 {
		t.Errorf("providers = %+v", cfg.Providers)
	}
	if cfg.Reading.Strategy() != reading.StrategyMonotonic || cfg.Reading.Rate != config.DefaultRate {
		t.Errorf("reading = %+v", cfg.Reading)
	}
	if cfg.Translate.SourceLanguage != config.DefaultSourceLanguage || cfg.CircuitBreaker.ResetTimeout != 30*time.Second {
		t.Errorf("translate = %+v, breaker = %+v", cfg.Translate, cfg.CircuitBreaker)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name:    "llm required",
			yaml:    "log_level: info\n",
			wantErr: []string{"providers.llm.name is required"},
		},
		{
			name:    "empty document",
			yaml:    "",
			wantErr: []string{"providers.llm.name is required"},
		},
		{
			name:    "bad log level",
			yaml:    "log_level: verbose\nproviders: {llm: {name: openai}}\n",
			wantErr: []string{"log_level"},
		},
		{
			name:    "bad scoring",
			yaml:    "providers: {llm: {name: openai}}\nreading: {scoring: vibes}\n",
			wantErr: []string{"reading.scoring"},
		},
		{
			name:    "rate out of range",
			yaml:    "providers: {llm: {name: openai}}\nreading: {rate: 3}\n",
			wantErr: []string{"reading.rate"},
		},
		{
			name:    "fallback without name",
			yaml:    "providers: {llm: {name: openai}, llm_fallbacks: [{model: x}]}\n",
			wantErr: []string{"llm_fallbacks[0].name"},
		},
		{
			name:    "metrics addr",
			yaml:    "providers: {llm: {name: openai}}\ntelemetry: {metrics_addr: nonsense}\n",
			wantErr: []string{"telemetry.metrics_addr"},
		},
		{
			name:    "negative breaker",
			yaml:    "providers: {llm: {name: openai}}\ncircuit_breaker: {max_failures: -1, reset_timeout: -1s}\n",
			wantErr: []string{"max_failures", "reset_timeout"},
		},
		{
			name:    "unknown key",
			yaml:    "providers: {llm: {name: openai}}\nserver: {listen_addr: ':80'}\n",
			wantErr: []string{"server"},
		},
		{
			name: "unknown provider name only warns",
			yaml: "providers: {llm: {name: my-proxy}, stt: {name: whisper}}\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if len(tt.wantErr) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected an error, got nil")
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error should mention %q, got: %v", want, err)
				}
			}
		})
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()

	for _, kind := range []string{"llm", "stt", "tts"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("no known names for %s", kind)
		}
	}
	if !slices.Contains(config.ValidProviderNames["stt"], "console") {
		t.Error("console recognizer missing from known stt names")
	}
}
