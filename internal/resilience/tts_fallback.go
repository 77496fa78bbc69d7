package resilience

import (
	"github.com/MrWong99/lingotutor/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] by creating the synthesizer from the
// first provider that can supply one.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// NewSynthesizer implements [tts.Provider]. Utterance failures are reported as
// synthesizer events and do not trigger failover.
func (f *TTSFallback) NewSynthesizer() (tts.Synthesizer, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (tts.Synthesizer, error) {
		return p.NewSynthesizer()
	})
}
