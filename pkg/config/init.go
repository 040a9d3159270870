package config

import (
	"fmt"
	"os"
)

// InitConfig writes a default configuration file to the default location
// ($XDG_CONFIG_HOME/nimbusio/config.yaml), refusing to overwrite an
// existing file unless force is set.
func InitConfig(force bool) (string, error) {
	return InitConfigToPath(GetDefaultConfigPath(), force)
}

// InitConfigToPath writes a default configuration file to path, refusing
// to overwrite an existing file unless force is set.
func InitConfigToPath(path string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
		}
	}

	cfg := GetDefaultConfig()
	if err := SaveConfig(cfg, path); err != nil {
		return "", err
	}
	return path, nil
}
