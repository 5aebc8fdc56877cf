// Package config loads config.yaml, the user-facing settings file named in
// spec.md §6.1: pricing, configured sisters, web API auth, and default
// heartbeat/launch instructions.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Pricing holds per-token USD rates used by the Stats Accumulator's cost
// computation (spec.md §4.I, §9 "do not guess, expose as config with
// documented defaults"). Units are USD per token, not per million tokens.
type Pricing struct {
	InputPerToken      float64 `yaml:"input_per_token"`
	OutputPerToken     float64 `yaml:"output_per_token"`
	CacheWritePerToken float64 `yaml:"cache_write_per_token"`
	CacheReadPerToken  float64 `yaml:"cache_read_per_token"`
}

// defaultPricing mirrors Claude's public per-million-token list pricing at
// the time this file was written (Sonnet-class rates), converted to a
// per-token rate. Operators should override these in config.yaml as vendor
// pricing changes; they are a starting point, not a promise.
func defaultPricing() Pricing {
	return Pricing{
		InputPerToken:      3.0 / 1_000_000,
		OutputPerToken:     15.0 / 1_000_000,
		CacheWritePerToken: 3.75 / 1_000_000,
		CacheReadPerToken:  0.30 / 1_000_000,
	}
}

// Sister is one remote overcode instance configured for aggregation
// (spec.md §4.P).
type Sister struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key,omitempty"`
}

// Web holds the Web API's bind address and auth configuration (spec.md
// §4.Q).
type Web struct {
	Listen       string `yaml:"listen"`
	APIKey       string `yaml:"api_key,omitempty"`
	AllowControl bool   `yaml:"allow_control"`
}

// Defaults holds the default standing orders applied to newly launched
// sessions that don't specify their own (spec.md §4.O).
type Defaults struct {
	HeartbeatFrequencySeconds int    `yaml:"heartbeat_frequency_seconds"`
	HeartbeatInstruction      string `yaml:"heartbeat_instruction"`
	PermissivenessMode        string `yaml:"permissiveness_mode"`
}

// Config is the parsed shape of config.yaml.
type Config struct {
	Pricing  Pricing  `yaml:"pricing"`
	Sisters  []Sister `yaml:"sisters"`
	Web      Web      `yaml:"web"`
	Defaults Defaults `yaml:"defaults"`
}

// Default returns the configuration used when config.yaml does not exist
// yet: documented pricing defaults, no sisters, web API bound to loopback
// with control disabled, and a conservative heartbeat default.
func Default() Config {
	return Config{
		Pricing: defaultPricing(),
		Web: Web{
			Listen:       "127.0.0.1:8787",
			AllowControl: false,
		},
		Defaults: Defaults{
			HeartbeatFrequencySeconds: 300,
			PermissivenessMode:        "normal",
		},
	}
}

// Load reads and parses config.yaml at path, returning Default() if the
// file does not exist (spec.md §7 "parse errors: per-file, ignore and
// continue" does not apply here — a missing config file is the expected
// first-run state, not a parse error).
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
