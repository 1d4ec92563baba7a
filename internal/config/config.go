// Package config loads the daemon's on-disk configuration: koanf plus a
// TOML file provider, last-file-wins across search paths, `~` expansion on
// path fields.
package config

import (
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds the daemon's runtime configuration.
type Config struct {
	// SocketPath overrides the control socket location. Empty means
	// derive it from XDG_RUNTIME_DIR, falling back to HOME.
	SocketPath string `koanf:"socket_path"`

	// AudioDevice is read from the config file but not passed on: the
	// player worker always opens the system's default output device.
	AudioDevice string `koanf:"audio_device"`

	// WorkerPath is the path to the player worker binary main executes to
	// spawn the child process. The child runs with main's own credentials;
	// no privileges are dropped.
	WorkerPath string `koanf:"worker_path"`

	// SnapshotPath overrides where the playlist snapshot is written on
	// clean shutdown and read on startup. Empty disables persistence.
	SnapshotPath string `koanf:"snapshot_path"`

	// RepeatAll, RepeatOne, Consume seed the initial playback modes.
	RepeatAll bool `koanf:"repeat_all"`
	RepeatOne bool `koanf:"repeat_one"`
	Consume   bool `koanf:"consume"`

	// LogLevel sets the logrus level by name ("debug", "info", "warn",
	// "error"). Empty means info. Checked again on every SIGHUP reload so
	// verbosity can be raised without restarting the daemon.
	LogLevel string `koanf:"log_level"`
}

// Load reads configuration from (in order, last wins):
// ~/.config/ampd/config.toml, then ./config.toml.
func Load() (*Config, error) {
	k := koanf.New(".")

	for _, path := range configPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.SocketPath = expandPath(cfg.SocketPath)
	cfg.SnapshotPath = expandPath(cfg.SnapshotPath)
	cfg.WorkerPath = expandPath(cfg.WorkerPath)

	return cfg, nil
}

func configPaths() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ampd", "config.toml"))
	}
	paths = append(paths, "config.toml")
	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// RuntimeDir resolves XDG_RUNTIME_DIR, falling back to HOME.
func RuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return os.Getenv("HOME")
}

// DefaultSocketPath returns the socket path to use when Config.SocketPath
// is unset.
func DefaultSocketPath() string {
	return filepath.Join(RuntimeDir(), "ampd.sock")
}
