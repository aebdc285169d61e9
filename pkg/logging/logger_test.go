package logging

import (
	"os"
	"strings"
	"sync"
	"testing"
)

// setupTestDir points the package-level log directory at a temp dir and
// resets the global state so each test gets a fresh session.
func setupTestDir(t *testing.T) {
	t.Helper()

	tempDir := t.TempDir()

	origLogDir := logDir
	origInitErr := initErr
	origInitOnce := initOnce
	origSessionID := sessionID
	origSessionIDOnce := sessionIDOnce

	logDir = tempDir
	initErr = nil
	initOnce = sync.Once{}
	sessionID = ""
	sessionIDOnce = sync.Once{}
	initOnce.Do(func() {}) // directory already exists, skip home lookup

	t.Cleanup(func() {
		logDir = origLogDir
		initErr = origInitErr
		initOnce = origInitOnce
		sessionID = origSessionID
		sessionIDOnce = origSessionIDOnce
	})
}

func TestNewLoggerWritesToSessionFile(t *testing.T) {
	setupTestDir(t)

	logger, err := NewLogger("orchestrator")
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	defer logger.Close()

	logger.Infof("summarizer %s ready", "tldr")
	logger.Warnf("keepalive eviction took %dms", 12)

	data, err := os.ReadFile(logger.LogPath())
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, "[orchestrator] [INFO] summarizer tldr ready") {
		t.Errorf("missing info entry, got:\n%s", content)
	}
	if !strings.Contains(content, "[WARN] keepalive eviction took 12ms") {
		t.Errorf("missing warn entry, got:\n%s", content)
	}
}

func TestLoggersShareSessionFile(t *testing.T) {
	setupTestDir(t)

	a, err := NewLogger("cache")
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	defer a.Close()

	b, err := NewLogger("sessions")
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	defer b.Close()

	if a.LogPath() != b.LogPath() {
		t.Errorf("components should share one session file: %q vs %q", a.LogPath(), b.LogPath())
	}
	if a.SessionID() != b.SessionID() {
		t.Errorf("session IDs differ: %q vs %q", a.SessionID(), b.SessionID())
	}
}

func TestDiscardLoggerIsSilent(t *testing.T) {
	logger := Discard("test")
	// Must not panic and must not create files.
	logger.Debugf("dropped")
	logger.Errorf("also dropped")
	if logger.LogPath() != "" {
		t.Errorf("discard logger should not have a log path")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("close should be a no-op: %v", err)
	}
}
