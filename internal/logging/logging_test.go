package logging

import (
	"strings"
	"testing"
)

func TestLoggerLevelFiltering(t *testing.T) {
	var buf strings.Builder
	log := New(&buf, Warn)

	log.Debug("not this")
	log.Info("nor this")
	log.Warn("but this", F("count", 3))

	out := buf.String()
	if strings.Contains(out, "not this") || strings.Contains(out, "nor this") {
		t.Fatalf("expected lower levels filtered, got %q", out)
	}
	if !strings.Contains(out, "level=warn") || !strings.Contains(out, `msg="but this"`) || !strings.Contains(out, "count=3") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestLoggerWith(t *testing.T) {
	var buf strings.Builder
	log := New(&buf, Info).With(F("session", "s1"))
	log.Info("hello")
	if !strings.Contains(buf.String(), "session=s1") {
		t.Fatalf("expected bound field in output, got %q", buf.String())
	}
}

func TestQuoting(t *testing.T) {
	tests := []struct {
		value any
		want  string
	}{
		{"plain", "plain"},
		{"has space", `"has space"`},
		{"", `""`},
		{"a=b", `"a=b"`},
		{true, "true"},
		{nil, "null"},
		{42, "42"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.value); got != tt.want {
			t.Fatalf("formatValue(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw  string
		want Level
	}{
		{"debug", Debug},
		{" WARN ", Warn},
		{"warning", Warn},
		{"error", Error},
		{"", Info},
		{"bogus", Info},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.raw); got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	log.Error("dropped")
	if log.Enabled(Error) {
		t.Fatalf("expected nop logger disabled at every level")
	}
}
