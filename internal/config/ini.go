package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/arancormonk/dsd-neo/internal/errtag"
)

// iniDoc is the parsed shape of an INI config file: a flat key/value
// map per section, keyed by lowercased section name. The empty string
// key holds top-level (sectionless) key/values.
type iniDoc struct {
	sections map[string]map[string]string
}

func newINIDoc() *iniDoc {
	return &iniDoc{sections: map[string]map[string]string{"": {}}}
}

func (d *iniDoc) set(section, key, value string) {
	m, ok := d.sections[section]
	if !ok {
		m = map[string]string{}
		d.sections[section] = m
	}
	m[key] = value
}

// merge overlays other on top of d: other's values win on key
// collision, matching the spec's "included values may be overridden
// by the including file" rule.
func (d *iniDoc) merge(other *iniDoc) {
	for section, kv := range other.sections {
		for k, v := range kv {
			d.set(section, k, v)
		}
	}
}

// LoadINI parses the config file at path, resolving a top-level
// include= directive first (included values may be overridden by the
// including file) and rejecting include cycles.
func LoadINI(path string) (*iniDoc, error) {
	return loadINI(path, map[string]bool{})
}

func loadINI(path string, visited map[string]bool) (*iniDoc, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errtag.Wrap(errtag.Config, "resolve config path", err)
	}
	if visited[abs] {
		return nil, errtag.New(errtag.Config, "include cycle detected at "+abs)
	}
	visited[abs] = true

	f, err := os.Open(abs)
	if err != nil {
		return nil, errtag.Wrap(errtag.Config, "open config file", err)
	}
	defer f.Close()

	doc := newINIDoc()
	section := ""
	var includePath string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			continue
		}
		key, value, ok := splitKV(line)
		if !ok {
			continue
		}
		if section == "" && strings.EqualFold(key, "include") {
			includePath = unquote(value)
			continue
		}
		doc.set(section, strings.ToLower(key), unquote(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, errtag.Wrap(errtag.Config, "read config file", err)
	}

	if includePath == "" {
		return doc, nil
	}

	if !filepath.IsAbs(includePath) {
		includePath = filepath.Join(filepath.Dir(abs), includePath)
	}
	included, err := loadINI(includePath, visited)
	if err != nil {
		return nil, err
	}
	included.merge(doc)
	return included, nil
}

func splitKV(line string) (key, value string, ok bool) {
	idx := strings.Index(line, "=")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// Get returns a key's value from a section ("" for top-level), and
// whether it was present.
func (d *iniDoc) Get(section, key string) (string, bool) {
	m, ok := d.sections[strings.ToLower(section)]
	if !ok {
		return "", false
	}
	v, ok := m[strings.ToLower(key)]
	return v, ok
}

// Section returns a section's key/value map, or nil if absent.
func (d *iniDoc) Section(name string) map[string]string {
	return d.sections[strings.ToLower(name)]
}

// ProfileNames returns the names registered as [profile.<name>]
// sections.
func (d *iniDoc) ProfileNames() []string {
	var names []string
	for section := range d.sections {
		if strings.HasPrefix(section, "profile.") {
			names = append(names, strings.TrimPrefix(section, "profile."))
		}
	}
	return names
}
