package config

import (
	"os"
	"strings"

	"github.com/sammcj/agentloop/types"
	"github.com/sirupsen/logrus"
)

// NewLogger builds a logger writing to stderr. Stdout stays free for the MCP
// stdio transport and for streamed chat output.
func NewLogger(cfg LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, &types.ConfigError{Field: "logging.level", Message: "unknown level", Err: err}
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
