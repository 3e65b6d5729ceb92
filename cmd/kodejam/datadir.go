// ABOUTME: XDG-based data and config directory resolution for the kodejam CLI.
// ABOUTME: Checks XDG_DATA_HOME / XDG_CONFIG_HOME, falls back to ~/.local/share/kodejam and ~/.config/kodejam.
package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// defaultDataDir returns the directory holding the sqlite database and client logs.
// It checks XDG_DATA_HOME first, then falls back to ~/.local/share/kodejam.
func defaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "kodejam"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", "kodejam"), nil
}

// defaultConfigPath returns the config file read when --config is not given.
// It checks XDG_CONFIG_HOME first, then falls back to ~/.config/kodejam.
func defaultConfigPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kodejam", "config.yaml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(home, ".config", "kodejam", "config.yaml"), nil
}

// resolveDataDir returns override when set, otherwise the XDG default,
// and makes sure the directory exists.
func resolveDataDir(override string) (string, error) {
	dir := override
	if dir == "" {
		d, err := defaultDataDir()
		if err != nil {
			return "", err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return dir, nil
}
