// Command lingotutor is the terminal host of the lingotutor language tutor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lingotutor/internal/app"
	"github.com/MrWong99/lingotutor/internal/config"
	"github.com/MrWong99/lingotutor/internal/health"
	"github.com/MrWong99/lingotutor/internal/observe"
	"github.com/MrWong99/lingotutor/internal/resilience"
	"github.com/MrWong99/lingotutor/internal/tutor"
	"github.com/MrWong99/lingotutor/pkg/provider/llm"
	"github.com/MrWong99/lingotutor/pkg/provider/llm/anyllm"
	"github.com/MrWong99/lingotutor/pkg/provider/llm/goopenai"
	"github.com/MrWong99/lingotutor/pkg/provider/llm/openai"
	"github.com/MrWong99/lingotutor/pkg/provider/stt"
	sttconsole "github.com/MrWong99/lingotutor/pkg/provider/stt/console"
	"github.com/MrWong99/lingotutor/pkg/provider/stt/deepgram"
	"github.com/MrWong99/lingotutor/pkg/provider/tts"
	ttsconsole "github.com/MrWong99/lingotutor/pkg/provider/tts/console"
	"github.com/MrWong99/lingotutor/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/lingotutor/pkg/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	modeName := flag.String("mode", "reading", "screen to open: reading, translate or chat")
	storyPath := flag.String("story", "", "practise the text in this file instead of generated stories")
	flag.Parse()

	mode, err := app.ParseMode(*modeName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lingotutor: %v\n", err)
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	if err := config.LoadEnvFiles(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "lingotutor: %v\n", err)
		return 1
	}
	watcher, err := config.NewWatcher(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lingotutor: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lingotutor: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("lingotutor starting",
		"config", *configPath,
		"mode", mode,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Registry:    promReg,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	// The console recognizer reads what the host forwards while listening.
	speechR, speechW := io.Pipe()
	defer speechW.Close()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, speechR)

	providers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:          "tutor",
		MaxFailures:   cfg.CircuitBreaker.MaxFailures,
		ResetTimeout:  cfg.CircuitBreaker.ResetTimeout,
		OnStateChange: breakerOpened(metrics),
	})
	svc := tutor.New(providers.LLM,
		tutor.WithMetrics(metrics),
		tutor.WithProviderName(cfg.Providers.LLM.Name),
		tutor.WithCircuitBreaker(breaker),
	)

	opts := []app.Option{
		app.WithMetrics(metrics),
		app.WithTutor(svc),
		app.WithSpeechInput(speechW),
	}
	if *storyPath != "" {
		story, err := loadStory(*storyPath)
		if err != nil {
			slog.Error("failed to load story", "err", err)
			return 1
		}
		opts = append(opts, app.WithStory(story))
	}

	printStartupSummary(cfg, mode)

	application, err := app.New(cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		return application.Run(gctx, mode)
	})

	g.Go(func() error {
		return watcher.Run(gctx, func(_, next *config.Config, d config.ConfigDiff) {
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			if d.ReadingChanged || d.TranslateChanged || d.ChatChanged {
				application.ApplyConfig(next)
			}
			if len(d.RestartRequired) > 0 {
				slog.Warn("config changes take effect after a restart", "sections", d.RestartRequired)
			}
		})
	})

	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           metricsMux(metrics, promReg, breaker),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("metrics listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// metricsMux serves /metrics plus the /healthz and /readyz checks. Readiness
// fails while the tutor breaker is open.
func metricsMux(m *observe.Metrics, reg *prometheus.Registry, breaker *resilience.CircuitBreaker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observe.MetricsHandler(m, reg))
	health.New(health.Breaker("tutor", breaker)).Register(mux)
	return mux
}

// loadStory reads a practice text. The file name without extension becomes
// the title.
func loadStory(path string) (types.Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Story{}, fmt.Errorf("read story: %w", err)
	}
	content := string(data)
	if len(content) == 0 {
		return types.Story{}, fmt.Errorf("story file %q is empty", path)
	}
	return types.Story{Title: storyTitle(path), Content: content}, nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmProviders share the same pattern: optional APIKey + optional BaseURL.
var anyllmProviders = []string{"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// registerBuiltinProviders wires all built-in provider factories into reg.
// speech is the line source of the console recognizer.
func registerBuiltinProviders(reg *config.Registry, speech io.Reader) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// openai-compatible targets self-hosted servers speaking the Chat
	// Completions API (vLLM, LM Studio, LocalAI, ...).
	reg.RegisterLLM("openai-compatible", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []goopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, goopenai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, goopenai.WithOrganization(org))
		}
		if v, ok := entry.Options["json_mode"].(bool); ok {
			opts = append(opts, goopenai.WithJSONMode(v))
		}
		if cw := optInt(entry.Options, "context_window"); cw > 0 {
			opts = append(opts, goopenai.WithContextWindow(cw, optInt(entry.Options, "max_output_tokens")))
		}
		return goopenai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range anyllmProviders {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if rate := optInt(entry.Options, "sample_rate"); rate > 0 {
			opts = append(opts, deepgram.WithSampleRate(rate))
		}
		if path := optString(entry.Options, "audio_file"); path != "" {
			opts = append(opts, deepgram.WithAudioSource(fileSource(path)))
		}
		if v, ok := entry.Options["realtime"].(bool); ok {
			opts = append(opts, deepgram.WithRealtime(v))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("console", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []sttconsole.Option{sttconsole.WithInput(speech)}
		if c := optFloat(entry.Options, "confidence"); c > 0 {
			opts = append(opts, sttconsole.WithConfidence(c))
		}
		return sttconsole.New(opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if voice := optString(entry.Options, "voice_id"); voice != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(voice))
		}
		if path := optString(entry.Options, "audio_out"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return nil, fmt.Errorf("open audio output: %w", err)
			}
			opts = append(opts, elevenlabs.WithSink(f))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("console", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []ttsconsole.Option{ttsconsole.WithOutput(os.Stdout)}
		if wpm := optInt(entry.Options, "words_per_minute"); wpm > 0 {
			opts = append(opts, ttsconsole.WithWordsPerMinute(wpm))
		}
		return ttsconsole.New(opts...)
	})

	for _, kind := range []string{"llm", "stt", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// fileSource replays a recorded PCM file for every recognition session.
func fileSource(path string) deepgram.AudioSource {
	return func(context.Context) (io.ReadCloser, error) {
		return os.Open(path)
	}
}

// breakerOpened counts every breaker trip as a provider error of kind
// "circuit_open".
func breakerOpened(metrics *observe.Metrics) func(name string, from, to resilience.State) {
	return func(name string, _, to resilience.State) {
		if to == resilience.StateOpen {
			metrics.RecordProviderError(context.Background(), name, "circuit_open")
		}
	}
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
// LLM fallbacks are grouped behind a failover provider, and the network
// speech providers fall back to their console counterparts.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*app.Providers, error) {
	ps := &app.Providers{}
	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:   cfg.CircuitBreaker.MaxFailures,
			ResetTimeout:  cfg.CircuitBreaker.ResetTimeout,
			OnStateChange: breakerOpened(metrics),
		},
		OnFailure: func(name string, err error) {
			slog.Warn("provider failed, trying next", "name", name, "err", err)
			metrics.RecordProviderError(context.Background(), name, "fallback")
		},
	}

	// ── LLM ───────────────────────────────────────────────────────────────────
	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)
	ps.LLM = primary
	if len(cfg.Providers.LLMFallbacks) > 0 {
		group := resilience.NewLLMFallback(primary, cfg.Providers.LLM.Name, fbCfg)
		for _, entry := range cfg.Providers.LLMFallbacks {
			p, err := reg.CreateLLM(entry)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
			}
			group.AddFallback(entry.Name, p)
			slog.Info("provider created", "kind", "llm", "name", entry.Name, "fallback", true)
		}
		ps.LLM = group
	}

	// ── STT ───────────────────────────────────────────────────────────────────
	sttEntry := cfg.Providers.STT
	sp, err := reg.CreateSTT(sttEntry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", sttEntry.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", sttEntry.Name)
	ps.STT = sp
	if sttEntry.Name != config.DefaultSpeechProvider {
		local, err := reg.CreateSTT(config.ProviderEntry{Name: config.DefaultSpeechProvider})
		if err != nil {
			return nil, fmt.Errorf("create stt fallback: %w", err)
		}
		group := resilience.NewSTTFallback(sp, sttEntry.Name, fbCfg)
		group.AddFallback(config.DefaultSpeechProvider, local)
		ps.STT = group
	}

	// ── TTS ───────────────────────────────────────────────────────────────────
	ttsEntry := cfg.Providers.TTS
	tp, err := reg.CreateTTS(ttsEntry)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", ttsEntry.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", ttsEntry.Name)
	ps.TTS = tp
	if ttsEntry.Name != config.DefaultSpeechProvider {
		local, err := reg.CreateTTS(config.ProviderEntry{Name: config.DefaultSpeechProvider})
		if err != nil {
			return nil, fmt.Errorf("create tts fallback: %w", err)
		}
		group := resilience.NewTTSFallback(tp, ttsEntry.Name, fbCfg)
		group.AddFallback(config.DefaultSpeechProvider, local)
		ps.TTS = group
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, mode app.Mode) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       lingotutor: startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	fmt.Printf("║  %-12s    : %-19d ║\n", "Fallbacks", len(cfg.Providers.LLMFallbacks))
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	fmt.Printf("║  %-12s    : %-19s ║\n", "Mode", mode)
	fmt.Printf("║  %-12s    : %-19s ║\n", "Scoring", cfg.Reading.Scoring)
	if cfg.Telemetry.MetricsAddr != "" {
		fmt.Printf("║  %-12s    : %-19s ║\n", "Metrics", cfg.Telemetry.MetricsAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
