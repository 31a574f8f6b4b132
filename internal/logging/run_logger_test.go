package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunLoggerWritesTrace(t *testing.T) {
	dir := t.TempDir()

	logger, err := StartRunLogging("abc123", dir)
	if err != nil {
		t.Fatalf("StartRunLogging failed: %v", err)
	}

	logger.LogSection("STAGE: Analyzing")
	logger.Log("Indexed %d files", 2)
	logger.LogError("analysis", errors.New("boom"))
	logger.LogPrompt("analysis", "the prompt body")
	logger.LogResponse("analysis", `{"summary": "x"}`)
	logger.Close()

	entries, err := filepath.Glob(filepath.Join(dir, "review_abc123_*.log"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one log file, got %v (%v)", entries, err)
	}

	data, err := os.ReadFile(entries[0])
	if err != nil {
		t.Fatalf("reading log failed: %v", err)
	}
	content := string(data)
	for _, want := range []string{
		"STAGE: Analyzing",
		"Indexed 2 files",
		"ERROR in analysis: boom",
		"COLLABORATOR REQUEST - analysis",
		"the prompt body",
		`{"summary": "x"}`,
	} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q", want)
		}
	}
	if !strings.Contains(content, "] [+") {
		t.Error("log lines should carry elapsed timestamps")
	}
}

func TestRunLoggerRegistry(t *testing.T) {
	dir := t.TempDir()

	logger, err := StartRunLogging("reg-test", dir)
	if err != nil {
		t.Fatalf("StartRunLogging failed: %v", err)
	}
	if ByRunID("reg-test") != logger {
		t.Error("logger should be registered under its run ID")
	}

	logger.Close()
	if ByRunID("reg-test") != nil {
		t.Error("Close should deregister the logger")
	}
}

func TestRunLoggerNilSafe(t *testing.T) {
	var logger *RunLogger
	logger.Log("ignored")
	logger.LogSection("ignored")
	logger.LogError("stage", errors.New("ignored"))
	logger.LogPrompt("stage", "ignored")
	logger.LogResponse("stage", "ignored")
	logger.Close()
}
