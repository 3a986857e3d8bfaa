// Package config holds anvil's process-wide configuration: the
// completion pre-processing switches and logging setup. The Manager
// keeps an atomically swappable snapshot so readers never block and
// never observe a half-loaded config.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the project-local config file the Manager reads
// when no explicit path is given.
const DefaultConfigFile = "anvil.yaml"

type Manager struct {
	configPtr unsafe.Pointer
	path      string
	watchers  []func(*Config)
	watcherMu sync.RWMutex
}

type Config struct {
	Completions CompletionsConfig `yaml:"completions"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// CompletionsConfig controls the prompt pre-processing stage. The stage
// itself never reads this; the caller threads the values in as explicit
// options.
type CompletionsConfig struct {
	// AdditionalContextEnabled turns variable injection on for
	// commercial callers.
	AdditionalContextEnabled bool `yaml:"additional_context_enabled"`

	// MultiTaskDelimiter joins shorthand task names in a trailing
	// comment.
	MultiTaskDelimiter string `yaml:"multi_task_delimiter"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func NewManager(path string) *Manager {
	if path == "" {
		path = DefaultConfigFile
	}
	m := &Manager{path: path}
	atomic.StorePointer(&m.configPtr, unsafe.Pointer(DefaultConfig()))
	return m
}

func DefaultConfig() *Config {
	return &Config{
		Completions: CompletionsConfig{
			AdditionalContextEnabled: false,
			MultiTaskDelimiter:       "&",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func (m *Manager) Get() *Config {
	return (*Config)(atomic.LoadPointer(&m.configPtr))
}

// Load rebuilds the snapshot from defaults, the config file (if it
// exists), and environment overrides, in that order.
func (m *Manager) Load() error {
	cfg := DefaultConfig()

	if err := m.loadFile(cfg); err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	m.applyEnvironment(cfg)

	atomic.StorePointer(&m.configPtr, unsafe.Pointer(cfg))
	m.notifyWatchers(cfg)
	return nil
}

func (m *Manager) loadFile(cfg *Config) error {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	fileCfg := &Config{}
	if err := yaml.Unmarshal(data, fileCfg); err != nil {
		return err
	}

	DeepMerge(cfg, fileCfg)
	return nil
}

func (m *Manager) applyEnvironment(cfg *Config) {
	if v := os.Getenv("ANVIL_ADDITIONAL_CONTEXT"); v != "" {
		cfg.Completions.AdditionalContextEnabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("ANVIL_MULTI_TASK_DELIMITER"); v != "" {
		cfg.Completions.MultiTaskDelimiter = v
	}
	if v := os.Getenv("ANVIL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ANVIL_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// OnChange registers a callback invoked with the new snapshot after
// every successful Load.
func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

func (m *Manager) Reload() error {
	return m.Load()
}
