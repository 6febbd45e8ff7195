package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestServiceJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	svc, log := New(Config{Level: "info", Console: true, Format: FormatJSON, Output: &buf})
	defer svc.Close()

	log.With(String("comp", "poller")).Info("cycle done", Int64("cursor", 42), Err(errors.New("boom")))
	log.Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %q", lines)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("record is not json: %v", err)
	}
	if rec["message"] != "cycle done" || rec["comp"] != "poller" || rec["cursor"] != float64(42) || rec["err"] != "boom" {
		t.Fatalf("record = %v", rec)
	}
	if c, _ := rec["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %v", rec["caller"])
	}
}

func TestServiceApplyChangesLevel(t *testing.T) {
	var buf bytes.Buffer
	svc, log := New(Config{Level: "warn", Console: true, Format: FormatJSON, Output: &buf})
	defer svc.Close()

	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
	svc.Apply(Config{Level: "debug", Console: true, Format: FormatJSON, Output: &buf})
	log.Debug("kept")
	if !strings.Contains(buf.String(), `"kept"`) {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestServiceFileSink(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "hwbot.log")
	svc, log := New(Config{Level: "info", Console: false, Output: &console, File: FileConfig{Enabled: true, Path: path}})

	log.Info("to file")
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}
	if console.Len() != 0 {
		t.Fatalf("console got %q with console disabled", console.String())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"message":"to file"`) {
		t.Fatalf("file = %q", b)
	}
}

func TestConsoleFallbackWhenNoSink(t *testing.T) {
	var buf bytes.Buffer
	svc, log := New(Config{Level: "info", Output: &buf})
	defer svc.Close()
	log.Info("still visible")
	if !strings.Contains(buf.String(), "still visible") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestNopAndZeroLogger(t *testing.T) {
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero logger not reported as zero")
	}
	zero.Error("ignored")
	Nop().With(String("k", "v")).Warn("ignored")
}

func TestParseLevelAndFormat(t *testing.T) {
	for _, s := range []string{"trace", "DEBUG", " info ", "warning", "Error"} {
		if _, ok := ParseLevel(s); !ok {
			t.Errorf("ParseLevel(%q) not ok", s)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Error("ParseLevel(loud) ok")
	}
	for s, want := range map[string]bool{"": true, "console": true, "JSON": true, "xml": false} {
		if got := ValidFormat(s); got != want {
			t.Errorf("ValidFormat(%q) = %v, want %v", s, got, want)
		}
	}
}
