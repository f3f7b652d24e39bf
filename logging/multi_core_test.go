package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewMultiCoreWithWriters(t *testing.T) {
	tests := []struct {
		name        string
		dev         bool
		consoleJSON bool
	}{
		{"development", true, false},
		{"production", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var console, file bytes.Buffer
			core := NewMultiCoreWithWriters(zapcore.InfoLevel, zapcore.AddSync(&console), zapcore.AddSync(&file), tt.dev)
			zap.New(core).Info("hello", zap.Int("n", 1))

			var entry map[string]interface{}
			if err := json.Unmarshal(bytes.TrimSpace(file.Bytes()), &entry); err != nil {
				t.Fatalf("file output not JSON: %v", err)
			}
			if entry[FieldLevel] != "info" {
				t.Errorf("level = %v", entry[FieldLevel])
			}
			isJSON := json.Valid(bytes.TrimSpace(console.Bytes()))
			if isJSON != tt.consoleJSON {
				t.Errorf("console JSON = %v, want %v: %q", isJSON, tt.consoleJSON, console.String())
			}
		})
	}
}

func TestNewMultiCoreWithWriters_LevelFiltering(t *testing.T) {
	var console, file bytes.Buffer
	core := NewMultiCoreWithWriters(zapcore.WarnLevel, zapcore.AddSync(&console), zapcore.AddSync(&file), false)
	logger := zap.New(core)
	logger.Info("dropped")
	logger.Error("kept")
	for name, out := range map[string]string{"console": console.String(), "file": file.String()} {
		if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
			t.Errorf("%s output = %q", name, out)
		}
	}
}

func TestConsoleEncoderConfig(t *testing.T) {
	cfg := NewConsoleEncoderConfig()
	if cfg.MessageKey != FieldMessage || cfg.NameKey != FieldLogger {
		t.Errorf("keys = %q/%q", cfg.MessageKey, cfg.NameKey)
	}
	base := NewEncoderConfig()
	if base.TimeKey != FieldTimestamp || base.CallerKey != FieldCaller {
		t.Errorf("base keys = %q/%q", base.TimeKey, base.CallerKey)
	}
}
