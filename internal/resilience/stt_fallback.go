package resilience

import (
	"github.com/MrWong99/lingotutor/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] by creating the recognizer from the
// first provider that can supply one. Typical use is a cloud recognizer that
// reports [stt.ErrUnsupported] without an audio source, backed by the console
// recognizer.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// NewRecognizer implements [stt.Provider]. Only creation is covered by
// failover; errors during a session are delivered as recognizer events.
func (f *STTFallback) NewRecognizer(cfg stt.Config) (stt.Recognizer, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.Recognizer, error) {
		return p.NewRecognizer(cfg)
	})
}
