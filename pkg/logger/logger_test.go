package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	log := New()
	if log == nil {
		t.Fatal("New() returned nil logger")
	}
	if log.level != INFO {
		t.Errorf("expected default level INFO, got %v", log.level)
	}
}

func TestNewWithConfig(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	log := NewWithConfig(Config{Level: DEBUG, Output: buf})

	if log.level != DEBUG {
		t.Errorf("expected level DEBUG, got %v", log.level)
	}

	log.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "test message") {
		t.Error("log output does not contain message")
	}
	if !strings.Contains(output, "[INFO]") {
		t.Error("log output does not contain level tag")
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	base := NewWithConfig(Config{Level: DEBUG, Output: buf})

	child := base.WithField("component", "coordinator")
	child.Info("child message")

	buf.Reset()
	base.Info("parent message")

	output := buf.String()
	if strings.Contains(output, "component=coordinator") {
		t.Error("WithField mutated the parent logger's fields")
	}
}

func TestWithFieldsChains(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	base := NewWithConfig(Config{Level: DEBUG, Output: buf})

	child := base.WithField("jobId", "J1").WithField("stage", "resolve")
	child.Info("resolving")

	output := buf.String()
	if !strings.Contains(output, "jobId=J1") || !strings.Contains(output, "stage=resolve") {
		t.Errorf("expected both fields in output, got %q", output)
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	log := NewWithConfig(Config{Level: WARN, Output: buf})

	log.Debug("should not appear")
	log.Info("should not appear either")
	log.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "should not appear") {
		t.Error("level filtering did not suppress below-threshold lines")
	}
	if !strings.Contains(output, "should appear") {
		t.Error("level filtering suppressed an at-threshold line")
	}
}

func TestFormatValueQuotesSpacedStrings(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	log := NewWithConfig(Config{Level: DEBUG, Output: buf})

	log.Info("msg", "reason", "no cluster matches")

	if !strings.Contains(buf.String(), `reason="no cluster matches"`) {
		t.Errorf("expected quoted multi-word value, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"Warn":    WARN,
		"WARNING": WARN,
		"error":   ERROR,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		if err != nil {
			t.Fatalf("ParseLevel(%q): unexpected error: %v", input, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}

	if _, err := ParseLevel("bogus"); err == nil {
		t.Error("expected error for unknown level")
	}
}
