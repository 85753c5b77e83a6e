package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/user/previewkit/pkg/ports"
)

func TestConsoleLogger_Levels(t *testing.T) {
	tests := []struct {
		level    ports.LogLevel
		expected []string
	}{
		{ports.LevelDebug, []string{"d 1", "i 2", "w 3", "e 4"}},
		{ports.LevelInfo, []string{"i 2", "w 3", "e 4"}},
		{ports.LevelError, []string{"e 4"}},
		{ports.LevelQuiet, nil},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			var buf bytes.Buffer
			l := NewWriter(tt.level, &buf)
			l.Debug("d %d", 1)
			l.Info("i %d", 2)
			l.Warn("w %d", 3)
			l.Error("e %d", 4)

			for _, want := range tt.expected {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("missing %q in %q", want, buf.String())
				}
			}
			if lines := strings.Count(buf.String(), "\n"); lines != len(tt.expected) {
				t.Errorf("expected %d lines, got %d", len(tt.expected), lines)
			}
		})
	}
}

func TestConsoleLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(ports.LevelInfo, &buf).WithComponent("thumbnail")
	l.Info("strip %s ready", "low")

	if got := strings.TrimSpace(buf.String()); got != "[thumbnail] strip low ready" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestConsoleLogger_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	base := NewWriter(ports.LevelInfo, &buf)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(l ports.Logger) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Info("line %d", j)
			}
		}(base.WithComponent("worker"))
	}
	wg.Wait()

	if lines := strings.Count(buf.String(), "\n"); lines != 400 {
		t.Errorf("expected 400 lines, got %d", lines)
	}
}

func TestNoopLogger(t *testing.T) {
	l := NewNoop()
	l.Error("ignored %d", 1)
	if l.WithComponent("x") == nil {
		t.Error("WithComponent should return a logger")
	}
}
