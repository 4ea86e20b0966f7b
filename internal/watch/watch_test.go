package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestReloadOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte("facts: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	reloads := make(chan string, 8)
	w, err := New(path, zaptest.NewLogger(t), func(p string) { reloads <- p })
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("facts:\n  - type: A\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-reloads:
		if got != path {
			t.Errorf("reload path = %q, want %q", got, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestDebounceCoalescesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte("facts: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	reloads := make(chan string, 8)
	w, err := New(path, zaptest.NewLogger(t), func(p string) { reloads <- p })
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("facts: []\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-reloads:
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after writes")
	}
	// The burst was inside one debounce window; no second reload follows.
	select {
	case <-reloads:
		t.Error("burst of writes produced more than one reload")
	case <-time.After(600 * time.Millisecond):
	}
}

func TestIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte("facts: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	reloads := make(chan string, 8)
	w, err := New(path, zaptest.NewLogger(t), func(p string) { reloads <- p })
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloads:
		t.Error("unrelated file triggered a reload")
	case <-time.After(600 * time.Millisecond):
	}
}

func TestStopAfterFailedStartReturns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "scenario.yaml")
	w, err := New(path, zaptest.NewLogger(t), func(string) {})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("Start() on a missing directory succeeded, want error")
	}

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() blocked after a failed Start()")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte("facts: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(path, zaptest.NewLogger(t), func(string) {})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	w.Stop()
	w.Stop()
}
