// Package config resolves nexus settings from defaults, JSONC config files
// and command-line overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/nexus-studio/internal/history"
	"github.com/calvinalkan/nexus-studio/internal/kv"
	"github.com/calvinalkan/nexus-studio/internal/logging"
	"github.com/calvinalkan/nexus-studio/internal/project"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrDataDirEmpty       = errors.New("data-dir cannot be empty")
	ErrBackendInvalid     = errors.New("unknown backend")
	ErrLimitInvalid       = errors.New("limit must be at least 1")
	ErrListenEmpty        = errors.New("listen address cannot be empty")
)

// FileName is the project config file looked up in the working directory.
const FileName = ".nexus.json"

// Config holds all configuration options.
type Config struct {
	DataDir        string   `json:"data_dir"`
	Backend        string   `json:"backend"`
	HistoryLimit   int      `json:"history_limit"`
	ProjectLimit   int      `json:"project_limit"`
	Listen         string   `json:"listen"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	LogLevel       string   `json:"log_level"`
	LogFormat      string   `json:"log_format"`

	// Resolved, not serialized.
	EffectiveCwd string  `json:"-"`
	DataDirAbs   string  `json:"-"`
	Sources      Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // empty if not loaded
	Project string // project or explicit -c file, empty if not loaded
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:      ".nexus",
		Backend:      kv.BackendFile,
		HistoryLimit: history.DefaultLimit,
		ProjectLimit: project.DefaultLimit,
		Listen:       "127.0.0.1:8420",
		LogLevel:     "info",
		LogFormat:    logging.FormatText,
	}
}

// fileLayer is one config file. Pointers tell "absent" from "zero".
type fileLayer struct {
	DataDir        *string  `json:"data_dir"`
	Backend        *string  `json:"backend"`
	HistoryLimit   *int     `json:"history_limit"`
	ProjectLimit   *int     `json:"project_limit"`
	Listen         *string  `json:"listen"`
	AllowedOrigins []string `json:"allowed_origins"`
	LogLevel       *string  `json:"log_level"`
	LogFormat      *string  `json:"log_format"`
}

// LoadInput holds the inputs for [Load].
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd; os.Getwd() if empty
	ConfigPath      string            // -c/--config
	DataDirOverride string            // --data-dir
	BackendOverride string            // --backend
	Env             map[string]string // environment
}

// Load resolves configuration, highest precedence last:
//  1. defaults
//  2. global config ($XDG_CONFIG_HOME/nexus/config.json or ~/.config/nexus/config.json)
//  3. project config (.nexus.json in the working dir), or the explicit -c file
//  4. CLI overrides
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	if !filepath.IsAbs(workDir) {
		abs, err := filepath.Abs(workDir)
		if err != nil {
			return Config{}, fmt.Errorf("resolve working directory: %w", err)
		}

		workDir = abs
	}

	cfg := Default()

	if globalPath := globalConfigPath(input.Env); globalPath != "" {
		layer, loaded, err := loadFile(globalPath, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg = merge(cfg, layer)
			cfg.Sources.Global = globalPath
		}
	}

	projectPath := filepath.Join(workDir, FileName)
	mustExist := false

	if input.ConfigPath != "" {
		projectPath = input.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true

		if _, err := os.Stat(projectPath); err != nil {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigFileNotFound, input.ConfigPath)
		}
	}

	layer, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = merge(cfg, layer)
		cfg.Sources.Project = projectPath
	}

	if input.DataDirOverride != "" {
		cfg.DataDir = input.DataDirOverride
	}

	if input.BackendOverride != "" {
		cfg.Backend = input.BackendOverride
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.DataDir) {
		cfg.DataDirAbs = filepath.Clean(cfg.DataDir)
	} else {
		cfg.DataDirAbs = filepath.Join(workDir, cfg.DataDir)
	}

	return cfg, nil
}

// globalConfigPath returns the global config file, or "" without a home.
func globalConfigPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "nexus", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "nexus", "config.json")
	}

	return ""
}

// loadFile reads and parses one config file. Missing optional files report
// loaded=false.
func loadFile(path string, mustExist bool) (fileLayer, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !mustExist && errors.Is(err, os.ErrNotExist) {
			return fileLayer{}, false, nil
		}

		return fileLayer{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	layer, err := parse(data)
	if err != nil {
		return fileLayer{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return layer, true, nil
}

func parse(data []byte) (fileLayer, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return fileLayer{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var layer fileLayer

	err = json.Unmarshal(standardized, &layer)
	if err != nil {
		return fileLayer{}, fmt.Errorf("invalid JSON: %w", err)
	}

	if layer.DataDir != nil && *layer.DataDir == "" {
		return fileLayer{}, ErrDataDirEmpty
	}

	return layer, nil
}

func merge(base Config, l fileLayer) Config {
	if l.DataDir != nil {
		base.DataDir = *l.DataDir
	}

	if l.Backend != nil {
		base.Backend = *l.Backend
	}

	if l.HistoryLimit != nil {
		base.HistoryLimit = *l.HistoryLimit
	}

	if l.ProjectLimit != nil {
		base.ProjectLimit = *l.ProjectLimit
	}

	if l.Listen != nil {
		base.Listen = *l.Listen
	}

	if l.AllowedOrigins != nil {
		base.AllowedOrigins = l.AllowedOrigins
	}

	if l.LogLevel != nil {
		base.LogLevel = *l.LogLevel
	}

	if l.LogFormat != nil {
		base.LogFormat = *l.LogFormat
	}

	return base
}

// Validate checks cfg for values no component can run with.
func Validate(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrDataDirEmpty
	}

	if !kv.IsBackend(cfg.Backend) {
		return fmt.Errorf("%w: %q (want %s, %s or %s)", ErrBackendInvalid, cfg.Backend,
			kv.BackendFile, kv.BackendSQLite, kv.BackendMemory)
	}

	if cfg.HistoryLimit < 1 {
		return fmt.Errorf("%w: history_limit=%d", ErrLimitInvalid, cfg.HistoryLimit)
	}

	if cfg.ProjectLimit < 1 {
		return fmt.Errorf("%w: project_limit=%d", ErrLimitInvalid, cfg.ProjectLimit)
	}

	if cfg.Listen == "" {
		return ErrListenEmpty
	}

	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return err
	}

	if !logging.ValidFormat(cfg.LogFormat) {
		return fmt.Errorf("%w: %q", logging.ErrInvalidFormat, cfg.LogFormat)
	}

	return nil
}
