package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("warn", &buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info().Msg("hidden")
	log.Warn().Str("component", "session").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	for _, want := range []string{"shown", "app=" + App, "component=session"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level string
		ok    bool
	}{
		{"", true},
		{"debug", true},
		{"INFO", true},
		{" error ", true},
		{"loud", false},
	}

	for _, tt := range tests {
		_, err := New(tt.level, &bytes.Buffer{})
		if (err == nil) != tt.ok {
			t.Errorf("New(%q) error = %v, want ok=%v", tt.level, err, tt.ok)
		}
	}
}
