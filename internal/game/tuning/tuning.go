// Package tuning loads the gameplay/runtime knobs from tuning.yaml.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickMS int `yaml:"tick_ms"`

	// Auto-sync fires on a coin flip each tick and on a fixed timer; both are
	// best-effort and swallow failures.
	AutosyncChancePermille int `yaml:"autosync_chance_permille"`
	AutosyncIntervalMS     int `yaml:"autosync_interval_ms"`

	LeaderboardSize int `yaml:"leaderboard_size"`
	TokenTTLHours   int `yaml:"token_ttl_hours"`

	StarterCurrency float64 `yaml:"starter_currency"`
	StarterBlock    string  `yaml:"starter_block"`
}

func Defaults() Tuning {
	return Tuning{
		TickMS:                 1000,
		AutosyncChancePermille: 250,
		AutosyncIntervalMS:     15000,
		LeaderboardSize:        50,
		TokenTTLHours:          720,
		StarterCurrency:        10,
		StarterBlock:           "add1",
	}
}

// Load reads path over Defaults, so a partial file only overrides what it
// names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
