// Package config assembles runtime configuration from an INI-style
// config file, CLI flags, and environment variable overrides, applying
// the spec's bounds clamps along the way.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/arancormonk/dsd-neo/internal/control"
	"github.com/arancormonk/dsd-neo/internal/errtag"
	"github.com/arancormonk/dsd-neo/internal/rdio"
	"github.com/arancormonk/dsd-neo/internal/trunk"
)

// Input holds the decoder's audio/IQ source selection.
type Input struct {
	Spec string // pulse|soapy[:args]|rtl:...|rtltcp:...
}

// Output holds the decoder's sink selections.
type Output struct {
	WavPath string
	MBEFile string
}

// Mode holds the protocol decode selection.
type Mode struct {
	Decode string // canonical decode mode, after alias resolution
}

// Keys holds cryptographic key material parsed from CLI hex strings.
type Keys struct {
	AES256Hex string
	RC4Hex    string
}

// Rdio holds the rdio export sidecar's settings.
type Rdio struct {
	Mode   rdio.Mode
	APIURL string
	APIKey string
}

// Config is the fully resolved runtime configuration: file + profile
// overlay + CLI + env, in that precedence order (later wins).
type Config struct {
	Version int

	Input  Input
	Output Output
	Mode   Mode
	Keys   Keys
	Rdio   Rdio

	Trunk         trunk.Config
	WatchdogMs    int // 0 selects the run mode's default period
	RTLUDPControl int // 0 means disabled

	Headless bool // --headless run mode selects HeadlessPeriod for the watchdog
}

// Default returns a Config seeded with the spec's documented defaults.
func Default() Config {
	return Config{
		Version: 1,
		Trunk:   trunk.DefaultConfig(),
	}
}

// LoadFile loads path, applies the named profile overlay (if any, and
// if it exists in the file), and returns the resulting Config merged
// onto Default().
func LoadFile(path string, profile string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	doc, err := LoadINI(path)
	if err != nil {
		return cfg, err
	}
	if v, ok := doc.Get("", "version"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errtag.Wrap(errtag.Config, "parse version", err)
		}
		cfg.Version = n
	}

	applySection(&cfg, doc.Section("input"), doc.Section("output"), doc.Section("mode"), doc.Section("trunking"))

	if profile != "" {
		overlay := doc.Section("profile." + profile)
		if overlay == nil {
			return cfg, errtag.New(errtag.Config, "unknown profile: "+profile)
		}
		applyFlat(&cfg, overlay)
	}

	return cfg, nil
}

func applySection(cfg *Config, input, output, mode, trunking map[string]string) {
	if v, ok := input["spec"]; ok {
		cfg.Input.Spec = v
	}
	if v, ok := output["wav"]; ok {
		cfg.Output.WavPath = v
	}
	if v, ok := output["mbe_file"]; ok {
		cfg.Output.MBEFile = v
	}
	if v, ok := mode["decode"]; ok {
		if canon, err := ResolveDecodeMode(v); err == nil {
			cfg.Mode.Decode = canon
		}
	}
	applyTrunking(cfg, trunking)
}

// applyFlat applies a profile overlay's keys across every known section
// by key name, since a [profile.<name>] section is a flat bag of
// overrides rather than nested sub-sections.
func applyFlat(cfg *Config, overlay map[string]string) {
	applySection(cfg, overlay, overlay, overlay, overlay)
}

func applyTrunking(cfg *Config, kv map[string]string) {
	setFloatClamped(kv, "hangtime_s", 0, 1e9, &cfg.Trunk.HangtimeS)
	setFloatClamped(kv, "vc_grace_s", 0, 10, &cfg.Trunk.VCGraceS)
	setFloatClamped(kv, "min_follow_dwell_s", 0, 5, &cfg.Trunk.MinFollowDwellS)
	setFloatClamped(kv, "grant_voice_timeout_s", 0, 10, &cfg.Trunk.GrantVoiceTimeoutS)
	setFloatClamped(kv, "retune_backoff_s", 0, 10, &cfg.Trunk.RetuneBackoffS)
	if v, ok := kv["watchdog_ms"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WatchdogMs = int(control.ClampWatchdogPeriod(time.Duration(n)*time.Millisecond) / time.Millisecond)
		}
	}
	if v, ok := kv["trunk_tune_data_calls"]; ok {
		cfg.Trunk.AllowDataCalls = parseBool(v)
	}
	if v, ok := kv["trunk_tune_enc_calls"]; ok {
		cfg.Trunk.AllowEncCalls = parseBool(v)
	}
}

func setFloatClamped(kv map[string]string, key string, min, max float64, dst *float64) {
	v, ok := kv[key]
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return
	}
	*dst = clampFloat(f, min, max)
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

// ApplyEnv overrides config knobs from environment variables, with
// bounds. Each variable is named DSDNEO_<KEY upper-cased>.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	kv := map[string]string{}
	for _, key := range []string{
		"hangtime_s", "vc_grace_s", "min_follow_dwell_s", "grant_voice_timeout_s",
		"retune_backoff_s", "watchdog_ms", "trunk_tune_data_calls", "trunk_tune_enc_calls",
	} {
		if v := getenv("DSDNEO_" + strings.ToUpper(key)); v != "" {
			kv[key] = v
		}
	}
	applyTrunking(c, kv)
}
