package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {

	log, err := New("detectstream", "debug", false)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !log.Desugar().Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected debug level enabled")
	}

	if _, err := New("detectstream", "loud", false); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestConfigDevelopment(t *testing.T) {

	if cfg := Config(zapcore.InfoLevel, true); !cfg.Development || cfg.DisableStacktrace {
		t.Errorf("unexpected development config %+v", cfg)
	}

	if cfg := Config(zapcore.InfoLevel, false); cfg.Development || !cfg.DisableStacktrace {
		t.Errorf("unexpected production config %+v", cfg)
	}
}
