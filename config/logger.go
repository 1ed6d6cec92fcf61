package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// ConfigureLogger applies LOG_LEVEL and the environment's output format to
// the standard logrus logger and returns it.
func ConfigureLogger(cfg *Config) *logrus.Logger {
	logger := logrus.StandardLogger()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithField("log_level", cfg.LogLevel).Warn("Unknown LOG_LEVEL, falling back to info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}
