package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestHandleWritesToFile(t *testing.T) {
	var buf bytes.Buffer
	debug := false
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, &debug)
	logger := slog.New(h)

	logger.Info("kernel booted", "shells", 3)

	out := buf.String()
	if !strings.Contains(out, "kernel booted") {
		t.Errorf("output %q does not contain message", out)
	}
	if !strings.Contains(out, "INFO:") {
		t.Errorf("output %q does not contain level", out)
	}
}

func TestHandleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	debug := false
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, &debug)
	logger := slog.New(h)

	logger.Info("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("Info record written despite Warn level filter: %q", buf.String())
	}

	logger.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Errorf("Warn record missing from output: %q", buf.String())
	}
}

func TestSetDebugIsReadBack(t *testing.T) {
	var buf bytes.Buffer
	debug := false
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, &debug)

	newDebug := true
	h.SetDebug(&newDebug)
	if !h.debug {
		t.Errorf("SetDebug(true) did not update handler state")
	}
}

func TestWithAttrsWritesToSameDestination(t *testing.T) {
	var buf bytes.Buffer
	debug := false
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, &debug)

	child := slog.New(h.WithAttrs([]slog.Attr{slog.Int("pid", 3)}))
	child.Info("process started")

	out := buf.String()
	if !strings.Contains(out, "process started") {
		t.Errorf("output %q missing message", out)
	}
	if !strings.Contains(out, "3") {
		t.Errorf("output %q missing attribute carried by WithAttrs", out)
	}
}

func TestWithAttrsMirrorsDebugFlag(t *testing.T) {
	var buf bytes.Buffer
	debug := true
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, &debug)

	child, ok := h.WithAttrs(nil).(*LogHandler)
	if !ok {
		t.Fatalf("WithAttrs() did not return a *LogHandler")
	}
	if !child.debug {
		t.Errorf("WithAttrs() child lost debug=true from parent")
	}
}
