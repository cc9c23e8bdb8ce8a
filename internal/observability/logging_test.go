package observability

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/autonoc/internal/config"
)

func TestNewLoggerLevels(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "debug"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug level should be enabled")
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "chatty"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("unknown level must fall back to info, not debug")
	}
	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info level should be enabled")
	}
}
