package config

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// decodeAlias maps a config/CLI spelling onto the canonical decode mode.
type decodeAlias struct {
	Name      string `yaml:"name"`
	Canonical string `yaml:"canonical"`
}

type presetFile struct {
	CanonicalModes []string      `yaml:"canonical_modes"`
	Aliases        []decodeAlias `yaml:"aliases"`
}

var (
	canonicalModes map[string]bool
	aliasTable     map[string]string
)

func init() {
	var pf presetFile
	if err := yaml.Unmarshal(presetsYAML, &pf); err != nil {
		panic(fmt.Sprintf("config: embedded preset table failed to parse: %v", err))
	}
	canonicalModes = make(map[string]bool, len(pf.CanonicalModes))
	for _, m := range pf.CanonicalModes {
		canonicalModes[m] = true
	}
	aliasTable = make(map[string]string, len(pf.Aliases))
	for _, a := range pf.Aliases {
		aliasTable[a.Name] = a.Canonical
	}
}

// ResolveDecodeMode maps a decode= value or CLI preset alias onto one of
// the canonical decode modes, or returns an error if it resolves to
// neither.
func ResolveDecodeMode(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if canonicalModes[s] {
		return s, nil
	}
	if canon, ok := aliasTable[s]; ok {
		return canon, nil
	}
	return "", fmt.Errorf("config: unknown decode mode or preset %q", s)
}

// presetFlagMode maps the short -f<letter> CLI preset flags onto a
// decode= value (spec.md CLI surface: fa=AUTO-all, fy=YSF only,
// fr=DMR mono legacy, fi=NXDN 4800; other letters are accepted from the
// embedded table so new presets don't require a code change).
func presetFlagMode(letter string) (string, bool) {
	v, ok := aliasTable["f"+letter]
	return v, ok
}
