package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// Config represents the TOML configuration structure
type Config struct {
	Server struct {
		Host    string   `toml:"host"`
		Origins []string `toml:"origins"`
	} `toml:"server"`

	Checkpoints struct {
		Path string `toml:"path"`
	} `toml:"checkpoints"`

	Training struct {
		NumParallel int  `toml:"num_parallel"`
		NoPrune     bool `toml:"noprune"`
	} `toml:"training"`

	Encoding struct {
		Window int `toml:"window"`
	} `toml:"encoding"`

	Logging struct {
		Debug bool `toml:"debug"`
	} `toml:"logging"`
}

var (
	configOnce sync.Once
	config     *Config
	configPath string
)

// GetConfigPaths returns the list of possible config file paths for the current OS
func GetConfigPaths() []string {
	var paths []string

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			paths = append(paths, filepath.Join(appData, "subtok", "config.toml"))
		}
		if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
			paths = append(paths, filepath.Join(userProfile, ".subtok", "config.toml"))
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err == nil {
			paths = append(paths,
				filepath.Join(home, "Library", "Application Support", "subtok", "config.toml"),
				filepath.Join(home, ".config", "subtok", "config.toml"),
				filepath.Join(home, ".subtok", "config.toml"),
			)
		}
	default: // Linux and others
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			paths = append(paths, filepath.Join(xdgConfig, "subtok", "config.toml"))
		}
		home, err := os.UserHomeDir()
		if err == nil {
			paths = append(paths,
				filepath.Join(home, ".config", "subtok", "config.toml"),
				filepath.Join(home, ".subtok", "config.toml"),
			)
		}
		paths = append(paths, "/etc/subtok/config.toml")
	}

	return paths
}

// loadConfig loads the first available configuration file
func loadConfig() (*Config, string, error) {
	paths := GetConfigPaths()
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			var cfg Config
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, "", fmt.Errorf("error parsing config file %s: %w", path, err)
			}
			return &cfg, path, nil
		}
	}
	return nil, "", nil
}

// GetConfigValue returns the value for a given environment variable key from the config file
func GetConfigValue(key string) string {
	configOnce.Do(func() {
		var err error
		config, configPath, err = loadConfig()
		if err != nil {
			slog.Warn("failed to load config file", "error", err)
		} else if config != nil {
			slog.Debug("loaded config file", "path", configPath)
		}
	})

	if config == nil {
		return ""
	}

	// Map environment variables to config values
	switch key {
	case "SUBTOK_HOST":
		return config.Server.Host
	case "SUBTOK_ORIGINS":
		if len(config.Server.Origins) > 0 {
			return strings.Join(config.Server.Origins, ",")
		}
	case "SUBTOK_HOME":
		return config.Checkpoints.Path
	case "SUBTOK_NUM_PARALLEL":
		if config.Training.NumParallel > 0 {
			return fmt.Sprintf("%d", config.Training.NumParallel)
		}
	case "SUBTOK_NOPRUNE":
		if config.Training.NoPrune {
			return "1"
		}
	case "SUBTOK_WINDOW":
		if config.Encoding.Window > 0 {
			return fmt.Sprintf("%d", config.Encoding.Window)
		}
	case "SUBTOK_DEBUG":
		if config.Logging.Debug {
			return "1"
		}
	}

	return ""
}

// GenerateExampleConfig returns a commented example TOML configuration
func GenerateExampleConfig() string {
	return `# Subtok Configuration File
# This is an example configuration file. Uncomment and modify values as needed.

[server]
# Network binding address (default: "127.0.0.1:11435")
host = "127.0.0.1:11435"
# Allowed CORS origins (comma-separated)
origins = ["http://localhost:3000"]

[checkpoints]
# Custom checkpoint directory path
path = "/path/to/checkpoints"

[training]
# Number of workers for corpus pair scans (default: 1)
num_parallel = 4
# Skip pruning of rare corpus entries (default: false)
noprune = false

[encoding]
# Default window size for encoded lines (default: 32)
window = 32

[logging]
# Enable debug logging (default: false)
debug = false
`
}
