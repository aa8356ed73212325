package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the daemon logger from level/format settings. Unknown
// formats fall back to console so a half-filled config still boots.
func NewLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.Set(strings.ToLower(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoding := strings.ToLower(format)
	var cfg zap.Config
	switch encoding {
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		encoding = "console"
		cfg = zap.NewDevelopmentConfig()
	}

	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.Encoding = encoding

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named("agentfix"), nil
}
