package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/lingotutor/internal/config"
	"github.com/MrWong99/lingotutor/pkg/provider/llm"
	llmmock "github.com/MrWong99/lingotutor/pkg/provider/llm/mock"
	"github.com/MrWong99/lingotutor/pkg/provider/stt"
	sttmock "github.com/MrWong99/lingotutor/pkg/provider/stt/mock"
	"github.com/MrWong99/lingotutor/pkg/provider/tts"
	ttsmock "github.com/MrWong99/lingotutor/pkg/provider/tts/mock"
)

func TestRegistry_Unregistered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nope"}
	if _, err := reg.CreateLLM(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM err = %v", err)
	}
	if _, err := reg.CreateSTT(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT err = %v", err)
	}
	if _, err := reg.CreateTTS(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS err = %v", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	wantLLM, wantSTT, wantTTS := &llmmock.Provider{}, &sttmock.Provider{}, &ttsmock.Provider{}
	var gotEntry config.ProviderEntry
	reg.RegisterLLM("stub", func(e config.ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return wantLLM, nil
	})
	reg.RegisterSTT("stub", func(config.ProviderEntry) (stt.Provider, error) { return wantSTT, nil })
	reg.RegisterTTS("stub", func(config.ProviderEntry) (tts.Provider, error) { return wantTTS, nil })

	entry := config.ProviderEntry{Name: "stub", Model: "m", Options: map[string]any{"k": 1}}
	if got, err := reg.CreateLLM(entry); err != nil || got != wantLLM {
		t.Errorf("CreateLLM = %v, %v", got, err)
	}
	if gotEntry.Model != "m" || gotEntry.Options["k"] != 1 {
		t.Errorf("factory received %+v", gotEntry)
	}
	if got, err := reg.CreateSTT(entry); err != nil || got != wantSTT {
		t.Errorf("CreateSTT = %v, %v", got, err)
	}
	if got, err := reg.CreateTTS(entry); err != nil || got != wantTTS {
		t.Errorf("CreateTTS = %v, %v", got, err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped factory error", err)
	}
	if errors.Is(err, config.ErrProviderNotRegistered) {
		t.Error("factory failure must not look like a missing registration")
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterSTT("deepgram", func(config.ProviderEntry) (stt.Provider, error) { return nil, nil })
	reg.RegisterSTT("console", func(config.ProviderEntry) (stt.Provider, error) { return nil, nil })

	if got := reg.Names("stt"); !slices.Equal(got, []string{"console", "deepgram"}) {
		t.Errorf("Names(stt) = %v", got)
	}
	if got := reg.Names("tts"); len(got) != 0 {
		t.Errorf("Names(tts) = %v, want none", got)
	}
}
