package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		" error ": ERROR,
		"fatal":   FATAL,
		"bogus":   INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: DEBUG, JSONFormat: true, Service: "e2e-tester", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.WithComponent("runner").Info("browser launched", map[string]interface{}{"browser": "chromium"})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["message"] != "browser launched" {
		t.Errorf("unexpected message: %v", entry["message"])
	}
	if entry["component"] != "runner" || entry["browser"] != "chromium" || entry["service"] != "e2e-tester" {
		t.Errorf("missing fields in %v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Options{Level: WARN, JSONFormat: true, Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	log.Info("dropped")
	log.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info entry should be filtered: %s", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn entry missing: %s", out)
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	var buf bytes.Buffer
	log, err := New(Options{Level: INFO, JSONFormat: true, FilePath: path, Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("to file")
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !strings.Contains(buf.String(), "to file") {
		t.Errorf("stdout copy missing")
	}
}

func TestGenerateLogrotateConfig(t *testing.T) {
	out := GenerateLogrotateConfig("/var/log/e2e-tester/service.log", 0)
	if !strings.Contains(out, "/var/log/e2e-tester/service.log {") {
		t.Errorf("missing log path stanza:\n%s", out)
	}
	if !strings.Contains(out, "rotate 14") {
		t.Errorf("expected default retention of 14:\n%s", out)
	}
	if !strings.Contains(out, "copytruncate") {
		t.Errorf("expected copytruncate:\n%s", out)
	}
}
