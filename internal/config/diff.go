package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; provider and
// telemetry changes are reported so the host can ask for a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ReadingChanged is true if any reading setting changed. New reading
	// screens pick the change up.
	ReadingChanged bool

	// ChatChanged and TranslateChanged cover the speak and language flags.
	ChatChanged      bool
	TranslateChanged bool

	// RestartRequired lists the top-level sections that only take effect
	// after a restart (e.g., "providers", "telemetry").
	RestartRequired []string
}

// Changed reports whether d contains any change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ReadingChanged || d.ChatChanged || d.TranslateChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}

	d.ReadingChanged = old.Reading.Scoring != new.Reading.Scoring ||
		old.Reading.Language != new.Reading.Language ||
		old.Reading.Rate != new.Reading.Rate ||
		old.Reading.Phonetic != new.Reading.Phonetic ||
		!slices.Equal(old.Reading.VoiceHints, new.Reading.VoiceHints)
	d.ChatChanged = old.Chat != new.Chat
	d.TranslateChanged = old.Translate != new.Translate

	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	if old.CircuitBreaker != new.CircuitBreaker {
		d.RestartRequired = append(d.RestartRequired, "circuit_breaker")
	}
	return d
}
