package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, "info", "json")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	log.Debug().Msg("hidden")
	log.Info().Str("conversation_id", "c1").Msg("turn stored")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected exactly one json line, got %q: %v", buf.String(), err)
	}
	if line["message"] != "turn stored" || line["conversation_id"] != "c1" || line["service"] != "echo" {
		t.Fatalf("unexpected log line: %v", line)
	}
}

func TestNew_RejectsUnknownInput(t *testing.T) {
	if _, err := New("loud", "json"); err == nil {
		t.Fatalf("expected bad level to fail")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatalf("expected bad format to fail")
	}
}
