package app

import (
	"strings"

	"github.com/charlesng35/codeshare/pkg/logger"
)

// ConfigureLogging initialises the global logger, defaulting to info level
// and JSON output.
func ConfigureLogging(cfg ServerConfig) error {
	level := strings.TrimSpace(cfg.LogLevel)
	if level == "" {
		level = "info"
	}
	return logger.InitWithOptions(logger.Options{
		Level:  level,
		Format: strings.TrimSpace(cfg.LogFormat),
	})
}
