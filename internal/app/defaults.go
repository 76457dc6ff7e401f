package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetDefaults returns application default paths, checking environment
// variables first. Environment variables:
//   - DOTKEEP_CONFIG: config file location (default: ~/.dotkeep/config.toml)
//
// The log directory defaults to the XDG state home, so logs survive a
// repository wipe or re-initialization.
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"log_dir":     filepath.Join(xdg.StateHome, "dotkeep"),
	}, nil
}

// getConfigPath returns the config file path, checking DOTKEEP_CONFIG env
// var first, then falling back to the default ~/.dotkeep/config.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("DOTKEEP_CONFIG"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".dotkeep", "config.toml"), nil
}
