package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPrefix is the prefix of test-config override variables:
// PERCOLATOR_<SECTION>__<KEY>.
const envPrefix = "PERCOLATOR"

// TestConfig is the section/key configuration handed to suites. A value
// set in the environment always wins over the file.
type TestConfig struct {
	path     string
	sections map[string]map[string]string
}

// LoadTestConfig reads a YAML test config of the shape
//
//	section:
//	  key: value
//
// Scalar values of any YAML type are flattened to strings.
func LoadTestConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test config %s: %w", path, err)
	}

	raw := make(map[string]map[string]any)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse test config %s: %w", path, err)
	}

	cfg := &TestConfig{path: path, sections: make(map[string]map[string]string, len(raw))}
	for section, values := range raw {
		flat := make(map[string]string, len(values))
		for key, val := range values {
			flat[key] = flatten(val)
		}
		cfg.sections[section] = flat
	}
	return cfg, nil
}

// EmptyTestConfig returns a config with no file-backed values; the
// environment overrides still apply.
func EmptyTestConfig() *TestConfig {
	return &TestConfig{sections: make(map[string]map[string]string)}
}

func flatten(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Path returns the file this config was loaded from, if any.
func (c *TestConfig) Path() string {
	return c.path
}

// Get returns the value for a section/key pair. The environment variable
// PERCOLATOR_<SECTION>__<KEY> overrides the file; the boolean reports
// whether either source had the value.
func (c *TestConfig) Get(section, key string) (string, bool) {
	if v, ok := os.LookupEnv(EnvKey(section, key)); ok {
		return v, true
	}
	values, ok := c.sections[section]
	if !ok {
		return "", false
	}
	v, ok := values[key]
	return v, ok
}

// GetDefault returns the value for a section/key pair, or def when
// neither the environment nor the file has it.
func (c *TestConfig) GetDefault(section, key, def string) string {
	if v, ok := c.Get(section, key); ok {
		return v
	}
	return def
}

// Section returns a copy of one section's file-backed values.
func (c *TestConfig) Section(section string) map[string]string {
	values, ok := c.sections[section]
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

// Sections lists the section names present in the file.
func (c *TestConfig) Sections() []string {
	out := make([]string, 0, len(c.sections))
	for name := range c.sections {
		out = append(out, name)
	}
	return out
}

// EnvKey builds the override variable name for a section/key pair:
// both parts uppercased with non-alphanumerics mapped to underscores,
// joined by a double underscore.
func EnvKey(section, key string) string {
	return envPrefix + "_" + envPart(section) + "__" + envPart(key)
}

func envPart(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
