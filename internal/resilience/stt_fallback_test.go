package resilience

import (
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/lingotutor/pkg/provider/stt"
	sttmock "github.com/MrWong99/lingotutor/pkg/provider/stt/mock"
)

func TestSTTFallback_NewRecognizer_PrimarySuccess(t *testing.T) {
	t.Parallel()

	rec := sttmock.NewRecognizer()
	primary := &sttmock.Provider{Recognizer: rec}
	secondary := &sttmock.Provider{}

	fb := NewSTTFallback(primary, "deepgram", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("console", secondary)

	cfg := stt.Config{Language: "en-US", Continuous: true, InterimResults: true}
	got, err := fb.NewRecognizer(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != stt.Recognizer(rec) {
		t.Fatal("expected the primary's recognizer")
	}
	if len(primary.Configs) != 1 || primary.Configs[0] != cfg {
		t.Fatalf("primary configs = %+v, want [%+v]", primary.Configs, cfg)
	}
	if len(secondary.Configs) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.Configs))
	}
}

func TestSTTFallback_NewRecognizer_UnsupportedFailsOver(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{
		NewRecognizerErr: fmt.Errorf("deepgram: no audio source: %w", stt.ErrUnsupported),
	}
	rec := sttmock.NewRecognizer()
	secondary := &sttmock.Provider{Recognizer: rec}

	fb := NewSTTFallback(primary, "deepgram", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("console", secondary)

	got, err := fb.NewRecognizer(stt.Config{Language: "en-US"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != stt.Recognizer(rec) {
		t.Fatal("expected the fallback's recognizer")
	}
}

func TestSTTFallback_NewRecognizer_AllFail(t *testing.T) {
	t.Parallel()

	fb := NewSTTFallback(&sttmock.Provider{NewRecognizerErr: stt.ErrUnsupported}, "deepgram", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("console", &sttmock.Provider{NewRecognizerErr: errors.New("no terminal")})

	_, err := fb.NewRecognizer(stt.Config{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
