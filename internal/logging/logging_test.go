package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	cases := []struct {
		level string
		debug bool
		warn  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"WARN", false, true},
		{"bogus", false, true},
	}
	for _, tc := range cases {
		logger, err := New(tc.level)
		if err != nil {
			t.Fatalf("%s: %v", tc.level, err)
		}
		if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.debug {
			t.Fatalf("%s: debug enabled = %v", tc.level, got)
		}
		if got := logger.Core().Enabled(zapcore.WarnLevel); got != tc.warn {
			t.Fatalf("%s: warn enabled = %v", tc.level, got)
		}
	}
}
