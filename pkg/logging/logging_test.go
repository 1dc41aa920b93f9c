package logging

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	w, closeFn := Setup(Options{File: path, MaxSizeMB: 1, Quiet: true})
	defer log.SetOutput(os.Stderr)

	New(w, "test").Printf("hello %s", "collector")
	if err := closeFn(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	line := string(data)
	if !strings.HasPrefix(line, "[test] ") || !strings.HasSuffix(line, "hello collector\n") {
		t.Errorf("unexpected log contents %q", data)
	}
}

func TestSetupWithoutFileUsesStderr(t *testing.T) {
	w, closeFn := Setup(Options{})
	defer closeFn()

	if w != os.Stderr {
		t.Error("expected stderr writer when no file is configured")
	}
}
