package logging

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"info", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"  DEBUG  ", zerolog.DebugLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWithRequestID(t *testing.T) {
	ctx, id := WithRequestID(context.Background(), "")
	if id == "" {
		t.Fatal("expected generated request id")
	}
	if got := RequestID(ctx); got != id {
		t.Errorf("RequestID = %q, want %q", got, id)
	}

	ctx, id = WithRequestID(context.Background(), "  fixed-id ")
	if id != "fixed-id" {
		t.Errorf("id = %q, want trimmed fixed-id", id)
	}
	if got := RequestID(ctx); got != "fixed-id" {
		t.Errorf("RequestID = %q, want fixed-id", got)
	}

	if got := RequestID(context.Background()); got != "" {
		t.Errorf("RequestID on empty context = %q, want empty", got)
	}
}
