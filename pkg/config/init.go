package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// sampleHeader is prepended to generated config files.
const sampleHeader = `# FileDepot server configuration.
#
# Every value below can be overridden with an environment variable using
# the FILEDEPOT_ prefix and underscores for nesting, e.g.
#   FILEDEPOT_LOGGING_LEVEL=DEBUG
#   FILEDEPOT_SERVER_MAX_CLIENTS=5

`

// InitConfig writes a default config file at the default location.
// Returns the written path. Refuses to overwrite unless force is set.
func InitConfig(force bool) (string, error) {
	path := DefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath writes a default config file to the given path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	cfg := Default()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	out := append([]byte(sampleHeader), data...)
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}
