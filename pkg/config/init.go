package config

import (
	"fmt"
	"os"
)

// InitConfig creates a sample configuration file at the default location.
//
// Returns the path the file was written to. If a config file already
// exists and force is false, an error is returned.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath creates a sample configuration file at the given path.
//
// The generated file contains all defaults, so it is immediately usable
// and documents every available setting.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}

	cfg := GetDefaultConfig()
	if err := SaveConfig(cfg, path); err != nil {
		return fmt.Errorf("failed to write sample config: %w", err)
	}
	return nil
}
