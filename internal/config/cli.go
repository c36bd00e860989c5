package config

import (
	"strings"

	"github.com/spf13/pflag"

	"github.com/arancormonk/dsd-neo/internal/errtag"
	"github.com/arancormonk/dsd-neo/internal/rdio"
)

// CLIResult holds the parsed command-line surface, before it is merged
// with any config file.
type CLIResult struct {
	ConfigPath string
	Profile    string

	InputSpec string
	WavPath   string
	MBEFile   string

	Decode string // empty if no -f<letter> preset and no explicit --decode

	AES256Hex string
	RC4Hex    string

	RTLUDPControl int

	RdioMode   string
	RdioAPIURL string
	RdioAPIKey string

	Headless bool
}

// ParseArgs parses argv (excluding argv[0]) per the spec's "CLI surface
// (essentials)". A bare positional argument ending in ".ini" is treated
// as --config <path>.
func ParseArgs(argv []string) (CLIResult, error) {
	fs := pflag.NewFlagSet("dsd-neo", pflag.ContinueOnError)
	fs.SetOutput(new(strings.Builder)) // suppress pflag's own usage print; caller handles errors

	var r CLIResult
	fs.StringVarP(&r.InputSpec, "input", "i", "", "input spec: pulse|soapy[:args]|rtl:...|rtltcp:...")
	fs.StringVarP(&r.WavPath, "wav", "w", "", "wav output path")
	fs.StringVarP(&r.MBEFile, "mbe-file", "r", "", "mbe file output path")
	fs.StringVarP(&r.AES256Hex, "aes256-key", "H", "", "AES-256 key, hex")
	fs.StringVarP(&r.RC4Hex, "rc4-key", "1", "", "RC4 key, hex (0x prefix and whitespace allowed)")
	fs.IntVar(&r.RTLUDPControl, "rtl-udp-control", 0, "RTL-UDP tune control port")
	fs.StringVar(&r.RdioMode, "rdio-mode", "off", "off|dirwatch|api|both")
	fs.StringVar(&r.RdioAPIURL, "rdio-api-url", "", "rdio API base URL")
	fs.StringVar(&r.RdioAPIKey, "rdio-api-key", "", "rdio API key")
	fs.StringVar(&r.ConfigPath, "config", "", "INI config file path")
	fs.StringVar(&r.Profile, "profile", "", "[profile.<name>] overlay to apply")
	fs.BoolVar(&r.Headless, "headless", false, "run without an interactive UI")

	var presetLetters []string
	for _, letter := range []string{"a", "y", "r", "i", "d", "p", "2", "x", "m", "e", "v", "q"} {
		letter := letter
		fs.Bool("f"+letter, false, "protocol preset -f"+letter)
		presetLetters = append(presetLetters, letter)
	}

	// pflag reads a single-dash argument as a run of one-letter
	// shorthands, so each -f<letter> preset is rewritten to its
	// --f<letter> long form before parsing.
	args := make([]string, len(argv))
	for i, a := range argv {
		if len(a) == 3 && strings.HasPrefix(a, "-f") && fs.Lookup(a[1:]) != nil {
			a = "-" + a
		}
		args[i] = a
	}
	if err := fs.Parse(args); err != nil {
		return r, errtag.Wrap(errtag.Config, "parse arguments", err)
	}

	for _, letter := range presetLetters {
		set, err := fs.GetBool("f" + letter)
		if err == nil && set {
			if mode, ok := presetFlagMode(letter); ok {
				r.Decode = mode
			}
		}
	}

	for _, arg := range fs.Args() {
		if strings.HasSuffix(strings.ToLower(arg), ".ini") {
			r.ConfigPath = arg
		}
	}

	if _, err := rdio.ParseMode(r.RdioMode); err != nil {
		return r, err
	}

	return r, nil
}

// Merge overlays a parsed CLIResult onto a file-derived Config, with
// the CLI winning on any field it set explicitly.
func Merge(base Config, cli CLIResult) (Config, error) {
	cfg := base
	if cli.InputSpec != "" {
		cfg.Input.Spec = cli.InputSpec
	}
	if cli.WavPath != "" {
		cfg.Output.WavPath = cli.WavPath
	}
	if cli.MBEFile != "" {
		cfg.Output.MBEFile = cli.MBEFile
	}
	if cli.Decode != "" {
		canon, err := ResolveDecodeMode(cli.Decode)
		if err != nil {
			return cfg, err
		}
		cfg.Mode.Decode = canon
	}
	if cli.AES256Hex != "" {
		cfg.Keys.AES256Hex = cli.AES256Hex
	}
	if cli.RC4Hex != "" {
		cfg.Keys.RC4Hex = normalizeRC4Hex(cli.RC4Hex)
	}
	if cli.RTLUDPControl != 0 {
		cfg.RTLUDPControl = cli.RTLUDPControl
	}
	mode, err := rdio.ParseMode(cli.RdioMode)
	if err != nil {
		return cfg, err
	}
	cfg.Rdio.Mode = mode
	if cli.RdioAPIURL != "" {
		cfg.Rdio.APIURL = cli.RdioAPIURL
	}
	if cli.RdioAPIKey != "" {
		cfg.Rdio.APIKey = cli.RdioAPIKey
	}
	cfg.Headless = cli.Headless
	return cfg, nil
}

// normalizeRC4Hex strips an optional 0x prefix and internal whitespace
// from an RC4 key argument, per the spec's "-1 <hex>... allows 0x
// prefix and whitespace" note.
func normalizeRC4Hex(s string) string {
	s = strings.Join(strings.Fields(s), "")
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	return s
}
