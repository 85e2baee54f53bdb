package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	logger, err := New("warn", "console")
	if err != nil {
		t.Fatal(err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info enabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("error disabled at warn level")
	}
}

func TestNewRejects(t *testing.T) {
	if _, err := New("loud", "json"); err == nil {
		t.Error("expected error for bad level")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Error("expected error for bad format")
	}
}
