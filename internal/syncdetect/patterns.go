package syncdetect

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed patterns.yaml
var patternsYAML []byte

// Pattern is one entry in the closed set of known frame sync patterns.
type Pattern struct {
	ID                 string `yaml:"id"`
	Protocol           string `yaml:"protocol"`
	Normal             string `yaml:"normal"`
	Inverted           bool   `yaml:"inverted"`
	Verbatim           bool   `yaml:"verbatim"`
	FramePeriodSymbols int    `yaml:"frame_period_symbols"`
	Tolerance          int    `yaml:"tolerance"`
	symbols            []float64
	invertedSymbols    []float64
}

type patternFile struct {
	Patterns []Pattern `yaml:"patterns"`
}

// allPatterns is populated once at package init, per the design note that
// global lookup tables are built before any worker goroutine starts.
var allPatterns []Pattern

func init() {
	var pf patternFile
	if err := yaml.Unmarshal(patternsYAML, &pf); err != nil {
		panic(fmt.Sprintf("syncdetect: embedded pattern table failed to parse: %v", err))
	}
	for i := range pf.Patterns {
		p := &pf.Patterns[i]
		p.symbols = decodeSymbols(p.Normal)
		p.invertedSymbols = invertSymbols(p.symbols)
	}
	allPatterns = pf.Patterns
}

func decodeSymbols(s string) []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		switch c {
		case '1':
			out[i] = 1
		case '3':
			out[i] = 3
		case '2':
			out[i] = -1 // some tables use 2 for -1 in documentation; accepted defensively
		case '0':
			out[i] = -3
		}
	}
	return out
}

func invertSymbols(s []float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		switch v {
		case 3:
			out[i] = -3
		case -3:
			out[i] = 3
		case 1:
			out[i] = -1
		case -1:
			out[i] = 1
		}
	}
	return out
}

// Patterns returns the closed set of known sync patterns.
func Patterns() []Pattern {
	return allPatterns
}

func longestPatternLen() int {
	longest := 0
	for _, p := range allPatterns {
		if len(p.symbols) > longest {
			longest = len(p.symbols)
		}
	}
	return longest
}
