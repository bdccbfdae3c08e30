package progress

import (
	"strings"
	"testing"
)

func TestProcessLogs_Log(t *testing.T) {
	logs := NewProcessLogs()

	logs.Log("transferring %s", "tank/home")
	logs.Log("done")

	entries := logs.GetLogs()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Log != "transferring tank/home" {
		t.Errorf("Unexpected first entry: %s", entries[0].Log)
	}
	if entries[0].LogAt.IsZero() {
		t.Errorf("Expected a timestamp on the entry")
	}
}

func TestProcessLogs_String(t *testing.T) {
	logs := NewProcessLogs()

	if logs.String() != "" {
		t.Errorf("Expected empty rendering, got %q", logs.String())
	}

	logs.Log("transferring %s", "tank/home")
	logs.Log("done")

	lines := strings.Split(strings.TrimRight(logs.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if !strings.HasSuffix(lines[0], "transferring tank/home") {
		t.Errorf("Unexpected first line: %s", lines[0])
	}
	if !strings.HasSuffix(lines[1], "done") {
		t.Errorf("Unexpected second line: %s", lines[1])
	}
}

func TestProcessLogger_CapturesAndForwards(t *testing.T) {
	logs := NewProcessLogs()
	logger := logs.Logger("tank/home")

	logger.Printf("synced %d bytes", 42)

	entries := logs.GetLogs()
	if len(entries) != 1 || entries[0].Log != "synced 42 bytes" {
		t.Errorf("Expected captured entry, got %v", entries)
	}
}
