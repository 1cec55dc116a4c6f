// Package config loads the engine configuration and the section/key test
// configuration that suites consume. Both are YAML files; every test
// config value can be overridden from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// HomeEnvVar overrides the engine's base directory.
	HomeEnvVar = "PERCOLATOR_HOME"

	defaultHomeDir    = ".percolator"
	defaultEngineFile = "engine.yaml"
	defaultConfigExt  = ".yaml"
)

// Engine holds the engine-level settings: where configs, data and logs
// live. Missing values fall back to directories under the engine home.
type Engine struct {
	ConfigDir string `yaml:"config_directory"`
	DataDir   string `yaml:"data_directory"`
	LogDir    string `yaml:"log_directory"`
	MasterLog string `yaml:"master_log_file_name"`
}

// Home returns the engine base directory: $PERCOLATOR_HOME when set,
// otherwise ~/.percolator.
func Home() string {
	if home := os.Getenv(HomeEnvVar); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return defaultHomeDir
	}
	return filepath.Join(userHome, defaultHomeDir)
}

// DefaultEngine returns the engine settings derived from the engine
// home, without reading any file.
func DefaultEngine() *Engine {
	home := Home()
	return &Engine{
		ConfigDir: filepath.Join(home, "configs"),
		DataDir:   filepath.Join(home, "data"),
		LogDir:    filepath.Join(home, "logs"),
		MasterLog: "percolator.master",
	}
}

// EnginePath resolves the engine config location: the explicit path
// when given, otherwise the default file under the engine home.
func EnginePath(path string) string {
	if path != "" {
		return path
	}
	return filepath.Join(Home(), defaultEngineFile)
}

// LoadEngine reads the engine config file, filling unset values with the
// defaults. An empty path loads <home>/engine.yaml when it exists and
// the plain defaults when it does not.
func LoadEngine(path string) (*Engine, error) {
	implicit := path == ""
	path = EnginePath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if implicit && os.IsNotExist(err) {
			return DefaultEngine(), nil
		}
		return nil, fmt.Errorf("failed to read engine config %s: %w", path, err)
	}

	eng := &Engine{}
	if err := yaml.Unmarshal(data, eng); err != nil {
		return nil, fmt.Errorf("failed to parse engine config %s: %w", path, err)
	}
	eng.applyDefaults()
	return eng, nil
}

func (e *Engine) applyDefaults() {
	def := DefaultEngine()
	if e.ConfigDir == "" {
		e.ConfigDir = def.ConfigDir
	}
	if e.DataDir == "" {
		e.DataDir = def.DataDir
	}
	if e.LogDir == "" {
		e.LogDir = def.LogDir
	}
	if e.MasterLog == "" {
		e.MasterLog = def.MasterLog
	}
}

// MasterLogPath returns the path of the rotated engine log file.
func (e *Engine) MasterLogPath() string {
	return filepath.Join(e.LogDir, e.MasterLog+".log")
}

// TestConfigPath resolves a test config identifier to a file path. A
// name that is already a path to an existing file is used as-is;
// otherwise the name is looked up under the config directory, appending
// the default extension when the name has none.
func (e *Engine) TestConfigPath(name string) string {
	if name == "" {
		return ""
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	if filepath.Ext(name) == "" {
		name += defaultConfigExt
	}
	return filepath.Join(e.ConfigDir, name)
}
