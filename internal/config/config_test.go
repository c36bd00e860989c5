package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arancormonk/dsd-neo/internal/rdio"
)

func writeTemp(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadFileParsesSections(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "main.ini", `
version = 1

[input]
spec = rtl:0:851000000:30:0:12500:8:2

[output]
wav = /tmp/out.wav

[mode]
decode = p25p1_only

[trunking]
hangtime_s = 2.5
trunk_tune_data_calls = true
`)
	cfg, err := LoadFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "rtl:0:851000000:30:0:12500:8:2", cfg.Input.Spec)
	assert.Equal(t, "/tmp/out.wav", cfg.Output.WavPath)
	assert.Equal(t, "p25p1", cfg.Mode.Decode)
	assert.Equal(t, 2.5, cfg.Trunk.HangtimeS)
	assert.True(t, cfg.Trunk.AllowDataCalls)
}

func TestLoadFileClampsOutOfRangeKnobs(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "main.ini", `
[trunking]
vc_grace_s = 99
watchdog_ms = 5
`)
	cfg, err := LoadFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, 10.0, cfg.Trunk.VCGraceS)
	assert.Equal(t, 20, cfg.WatchdogMs)
}

func TestLoadFileIncludeMergesWithIncludingFileWinning(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "base.ini", `
[trunking]
hangtime_s = 3.0
retune_backoff_s = 2.0
`)
	path := writeTemp(t, dir, "main.ini", `
include = "base.ini"

[trunking]
hangtime_s = 1.0
`)
	cfg, err := LoadFile(path, "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, cfg.Trunk.HangtimeS, "including file's own value must win")
	assert.Equal(t, 2.0, cfg.Trunk.RetuneBackoffS, "included file's value survives where not overridden")
}

func TestLoadFileIncludeCycleIsRejected(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "a.ini", `include = "b.ini"`)
	bPath := writeTemp(t, dir, "b.ini", `include = "a.ini"`)
	_, err := LoadFile(bPath, "")
	assert.Error(t, err)
}

func TestLoadFileAppliesNamedProfile(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "main.ini", `
[trunking]
hangtime_s = 1.0

[profile.night]
hangtime_s = 5.0
`)
	cfg, err := LoadFile(path, "night")
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.Trunk.HangtimeS)
}

func TestLoadFileUnknownProfileErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "main.ini", `[trunking]
hangtime_s = 1.0
`)
	_, err := LoadFile(path, "nonexistent")
	assert.Error(t, err)
}

func TestResolveDecodeModeAliases(t *testing.T) {
	cases := map[string]string{
		"p25p1_only":     "p25p1",
		"p25p2_only":     "p25p2",
		"analog_monitor": "analog",
		"dmr":            "dmr",
	}
	for in, want := range cases {
		got, err := ResolveDecodeMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ResolveDecodeMode("bogus")
	assert.Error(t, err)
}

func TestParseArgsPresetFlagSelectsDecodeMode(t *testing.T) {
	r, err := ParseArgs([]string{"-fy", "-i", "pulse"})
	require.NoError(t, err)
	assert.Equal(t, "ysf", r.Decode)
	assert.Equal(t, "pulse", r.InputSpec)
}

func TestParseArgsBarePositionalIniTreatedAsConfig(t *testing.T) {
	r, err := ParseArgs([]string{"system.ini"})
	require.NoError(t, err)
	assert.Equal(t, "system.ini", r.ConfigPath)
}

func TestParseArgsRC4KeyAllowsPrefixAndWhitespace(t *testing.T) {
	r, err := ParseArgs([]string{"-1", "0x ab cd"})
	require.NoError(t, err)
	cfg, err := Merge(Default(), r)
	require.NoError(t, err)
	assert.Equal(t, "abcd", cfg.Keys.RC4Hex)
}

func TestParseArgsInvalidRdioModeErrors(t *testing.T) {
	_, err := ParseArgs([]string{"--rdio-mode", "bogus"})
	assert.Error(t, err)
}

func TestMergeCLIOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "main.ini", `[input]
spec = pulse
`)
	fileCfg, err := LoadFile(path, "")
	require.NoError(t, err)

	cli, err := ParseArgs([]string{"-i", "rtltcp:127.0.0.1:1234"})
	require.NoError(t, err)
	merged, err := Merge(fileCfg, cli)
	require.NoError(t, err)
	assert.Equal(t, "rtltcp:127.0.0.1:1234", merged.Input.Spec)
}

func TestDefaultRdioModeIsOff(t *testing.T) {
	cfg := Default()
	assert.Equal(t, rdio.ModeOff, cfg.Rdio.Mode)
}

func TestApplyEnvOverridesAndClamps(t *testing.T) {
	cfg := Default()
	getenv := func(k string) string {
		switch k {
		case "DSDNEO_HANGTIME_S":
			return "2.0"
		case "DSDNEO_WATCHDOG_MS":
			return "9999"
		default:
			return ""
		}
	}
	cfg.ApplyEnv(getenv)
	assert.Equal(t, 2.0, cfg.Trunk.HangtimeS)
	assert.Equal(t, 2000, cfg.WatchdogMs)
}
