package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

const (
	defaultConfigPath = "~/.config/georeg/config.json"
	defaultParallel   = 2
)

// Config holds user-editable settings for the service.
type Config struct {
	Processing Processing `json:"processing"`
	Logging    Logging    `json:"logging"`
	Paths      Paths      `json:"paths"`
	Engines    Engines    `json:"engines"`
	Run        Run        `json:"run"`
	Watch      Watch      `json:"watch"`
	Server     Server     `json:"server"`
}

// Processing captures execution preferences.
type Processing struct {
	// ParallelRuns bounds how many coregistration runs execute at once.
	// Runs shell out to memory-hungry tooling, so the default is low.
	ParallelRuns int    `json:"parallel_runs"`
	TempDir      string `json:"temp_dir"`
}

// Logging controls logging verbosity and destinations.
type Logging struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Format     string `json:"format"`      // text, json
	FileOutput bool   `json:"file_output"` // Enable file logging
	LogDir     string `json:"log_dir"`     // Directory for log files
}

// Paths configures default input/output locations.
type Paths struct {
	DefaultSession   string `json:"default_session"`
	DefaultReference string `json:"default_reference"`
	DatabasePath     string `json:"database_path"`
}

// Engines configures the external coregistration commands.
type Engines struct {
	Default  string          `json:"default"`
	Commands []EngineCommand `json:"commands"`
}

// EngineCommand names one external coregistration program. Args are passed
// on every invocation before the per-request flags.
type EngineCommand struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// Run seeds per-run settings; command line flags override them.
type Run struct {
	Engine string `json:"engine"`
	// FilterPreset points at a YAML or JSON file overlaying the default
	// filter thresholds.
	FilterPreset   string `json:"filter_preset"`
	SkipPreviews   bool   `json:"skip_previews"`
	PreviewQuality int    `json:"preview_quality"`
}

// Watch configures the session inbox watcher.
type Watch struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir"`
	// Reference is the raster watched sessions are aligned against.
	Reference       string `json:"reference"`
	DebounceSeconds int    `json:"debounce_seconds"`
}

// Server configures the HTTP status server. The dashboard, API and
// websocket feed all share one address.
type Server struct {
	Addr string `json:"addr"`
}

// Load reads configuration from disk, falling back to sensible defaults.
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("GEOREG_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	expanded, err := expandUser(configPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Path returns the active config file location, before ~ expansion.
func Path() string {
	if p := os.Getenv("GEOREG_CONFIG"); p != "" {
		return p
	}
	return defaultConfigPath
}

// Save writes cfg as indented JSON, creating parent directories as needed.
func Save(cfg *Config, path string) error {
	expanded, err := expandUser(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(expanded, append(data, '\n'), 0o644)
}

func defaultConfig() *Config {
	return &Config{
		Processing: Processing{
			ParallelRuns: defaultParallel,
			TempDir:      os.TempDir(),
		},
		Logging: Logging{
			Level:      "info",
			Format:     "text",
			FileOutput: true,
			LogDir:     "./logs",
		},
		Paths: Paths{
			DefaultSession: ".",
			DatabasePath:   filepath.Join(os.TempDir(), "georeg.db"),
		},
		Engines: Engines{
			Default: "arosics",
			Commands: []EngineCommand{
				{Name: "arosics", Command: "arosics-coreg"},
			},
		},
		Run: Run{
			PreviewQuality: 90,
		},
		Watch: Watch{
			DebounceSeconds: 30,
		},
		Server: Server{
			Addr: ":8080",
		},
	}
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if path == "~" {
		return home, nil
	}

	return filepath.Join(home, path[2:]), nil
}
