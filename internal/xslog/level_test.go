package xslog

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"Warn", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q) error = %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvKey, "debug")
	if got := FromEnv(); got != LevelDebug {
		t.Errorf("FromEnv() = %v, want debug", got)
	}

	t.Setenv(EnvKey, "nonsense")
	if got := FromEnv(); got != Default {
		t.Errorf("FromEnv() with bad value = %v, want default", got)
	}

	t.Setenv(EnvKey, "")
	if got := FromEnv(); got != Default {
		t.Errorf("FromEnv() unset = %v, want default", got)
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelWarn)

	logger.Info("quiet")
	logger.Warn("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Error("info record should be suppressed at warn level")
	}
	if !strings.Contains(out, "loud") {
		t.Error("warn record should be emitted at warn level")
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelInfo)

	ctx := WithLogger(t.Context(), logger)
	if got := FromContext(ctx); got != logger {
		t.Error("FromContext should return the stored logger")
	}

	ctx = WithAttrs(ctx, slog.Int64("athlete_id", 7))
	FromContext(ctx).Info("hello")
	if !strings.Contains(buf.String(), `"athlete_id":7`) {
		t.Errorf("attrs from context not applied: %s", buf.String())
	}
}

func TestFromContextDefaults(t *testing.T) {
	if got := FromContext(t.Context()); got != slog.Default() {
		t.Error("FromContext without a stored logger should fall back to slog.Default")
	}
}
