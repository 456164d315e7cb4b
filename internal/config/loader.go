package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is the name of the project-level config file.
	ProjectConfigFile = "lawgraph.yaml"
	// UserConfigDir is the user-level config directory, relative to home.
	UserConfigDir = ".config/lawgraph"
	// UserConfigFile is the name of the user-level config file.
	UserConfigFile = "config.yaml"
)

// Loader loads configuration with layered precedence.
type Loader struct {
	// HomeDir and WorkDir default to the user's home and the current
	// directory.
	HomeDir string
	WorkDir string

	logger *slog.Logger
}

// NewLoader creates a loader that logs to logger.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{logger: logger}
}

// Load applies, in order:
// 1. the defaults
// 2. the user config (~/.config/lawgraph/config.yaml)
// 3. the project config (lawgraph.yaml in the work dir or a parent)
// 4. explicit, when non-empty
//
// A missing user or project file is not an error; a malformed one is.
func (l *Loader) Load(explicit string) (*Config, error) {
	config := DefaultConfig()

	if path := l.userConfigPath(); path != "" {
		layer, err := readLayer(path)
		switch {
		case err == nil:
			l.logger.Debug("loaded user config", slog.String("path", path))
			config.Merge(layer)
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}

	if path := l.findProjectConfig(); path != "" {
		layer, err := readLayer(path)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("loaded project config", slog.String("path", path))
		config.Merge(layer)
	} else {
		l.logger.Debug("no project config found")
	}

	if explicit != "" {
		layer, err := readLayer(explicit)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("loaded config", slog.String("path", explicit))
		config.Merge(layer)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (l *Loader) userConfigPath() string {
	home := l.HomeDir
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches the work dir and its parents for lawgraph.yaml.
func (l *Loader) findProjectConfig() string {
	dir := l.WorkDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return ""
		}
		dir = cwd
	}

	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
