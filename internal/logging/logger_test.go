package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{input: "debug", want: LevelDebug},
		{input: "INFO", want: LevelInfo},
		{input: "", want: LevelInfo},
		{input: "warning", want: LevelWarn},
		{input: "error", want: LevelError},
		{input: "verbose", want: LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_JSONWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(LevelInfo, "json", &buf).With("agent", 3)

	logger.Debug("hidden")
	logger.Info("state changed", "to", "EATING")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 record, got %d: %q", len(lines), buf.String())
	}

	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("Record is not JSON: %v", err)
	}
	if rec["msg"] != "state changed" || rec["to"] != "EATING" || rec["agent"] != float64(3) {
		t.Errorf("Unexpected record: %v", rec)
	}
}

func TestNoOp(t *testing.T) {
	var l Logger = NoOp{}
	l.With("k", "v").Error("ignored")
}
