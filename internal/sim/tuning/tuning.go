package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	RosterTickMS   int `yaml:"roster_tick_ms"`
	FlushEverySecs int `yaml:"flush_every_secs"`
	SweepEverySecs int `yaml:"sweep_every_secs"`

	DailyPlacementCap int   `yaml:"daily_placement_cap"`
	CreditBufferSecs  int64 `yaml:"credit_buffer_secs"`
	MaxPresets        int   `yaml:"max_presets"`
	MaxPresetItems    int   `yaml:"max_preset_items"`

	ObjectMaxAgeHours int `yaml:"object_max_age_hours"`
	OwnerIdleHours    int `yaml:"owner_idle_hours"`
	ActivityKeepHours int `yaml:"activity_keep_hours"`
	LedgerPurgeDays   int `yaml:"ledger_purge_days"`

	Names      Names      `yaml:"names"`
	RateLimits RateLimits `yaml:"rate_limits"`
}

type Names struct {
	MinLen           int      `yaml:"min_len"`
	MaxLen           int      `yaml:"max_len"`
	BannedSubstrings []string `yaml:"banned_substrings"`
}

type RateLimits struct {
	// Per-connection inbound request token bucket.
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	Burst          int     `yaml:"burst"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:   "1.0",
		RosterTickMS:      1500,
		FlushEverySecs:    60,
		SweepEverySecs:    3600,
		DailyPlacementCap: 1000,
		CreditBufferSecs:  90,
		MaxPresets:        8,
		MaxPresetItems:    32,
		ObjectMaxAgeHours: 48,
		OwnerIdleHours:    48,
		ActivityKeepHours: 49,
		LedgerPurgeDays:   7,
		Names: Names{
			MinLen:           1,
			MaxLen:           24,
			BannedSubstrings: []string{"admin", "moderator", "system"},
		},
		RateLimits: RateLimits{
			RequestsPerSec: 25,
			Burst:          50,
		},
	}
}

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
