package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		l, err := New("debug", format)
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		if !l.Core().Enabled(zapcore.DebugLevel) {
			t.Fatalf("%s: debug not enabled", format)
		}
	}
	if _, err := New("loud", "json"); err == nil {
		t.Fatal("expected level error")
	}
	if OrNop(nil) == nil {
		t.Fatal("nil logger")
	}
}
