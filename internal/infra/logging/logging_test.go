//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"docbatch/internal/config"
)

func TestWith(t *testing.T) {
	t.Run("should attach ids stored in the context", func(t *testing.T) {
		// --- Arrange ---
		var buf bytes.Buffer
		base := NewWithWriter(&buf, config.LogConfig{Level: "info", Format: "json"}, false)
		ctx := WithJobID(WithUserID(WithTraceID(context.Background(), "t-1"), "u-1"), "j-1")

		// --- Act ---
		With(ctx, base).Info().Msg("hello")

		// --- Assert ---
		var got map[string]any
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("expected json log line, got %q", buf.String())
		}
		for k, want := range map[string]string{"trace_id": "t-1", "user_id": "u-1", "job_id": "j-1"} {
			if got[k] != want {
				t.Errorf("expected %s=%s, got %v", k, want, got[k])
			}
		}
	})

	t.Run("should drop events below the configured level", func(t *testing.T) {
		// --- Arrange ---
		var buf bytes.Buffer
		base := NewWithWriter(&buf, config.LogConfig{Level: "warn", Format: "json"}, false)

		// --- Act ---
		base.Info().Msg("quiet")

		// --- Assert ---
		if buf.Len() != 0 {
			t.Errorf("expected no output, got %q", buf.String())
		}
	})
}

func TestRedact(t *testing.T) {
	if got := Redact("short", false); got != "***" {
		t.Errorf("expected ***, got %q", got)
	}
	if got := Redact("0123456789", false); got != "0123...89" {
		t.Errorf("unexpected redaction %q", got)
	}
	if got := Redact("visible", true); got != "visible" {
		t.Errorf("expected dev mode to keep value, got %q", got)
	}
}
