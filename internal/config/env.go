package config

import (
	"os"
	"strings"
)

// Environment variables that override the config file.
const (
	EnvCamera     = "SENTINEL_CAMERA"
	EnvPort       = "SENTINEL_PORT"
	EnvDataDir    = "SENTINEL_DATA_DIR"
	EnvAlertSound = "SENTINEL_ALERT_SOUND"
	EnvLogLevel   = "SENTINEL_LOG_LEVEL"
)

// envOr returns the named environment variable, or def if unset or blank.
func envOr(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func (c *Config) applyEnv() {
	c.Camera.Device = envOr(EnvCamera, c.Camera.Device)
	c.Storage.DataDir = envOr(EnvDataDir, c.Storage.DataDir)
	c.Alert.Sound = envOr(EnvAlertSound, c.Alert.Sound)
	c.Logging.Level = envOr(EnvLogLevel, c.Logging.Level)
	if port := envOr(EnvPort, ""); port != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(port, ":")
	}
}
