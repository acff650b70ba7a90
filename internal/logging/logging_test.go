package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()
	if filepath.Base(path) != "ordgrep.log" {
		t.Errorf("DefaultLogPath should end with ordgrep.log, got: %s", path)
	}
	if !strings.Contains(path, filepath.Join(".ordgrep", "logs")) {
		t.Errorf("DefaultLogPath should be under .ordgrep/logs, got: %s", path)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "warn" {
		t.Errorf("expected level 'warn', got: %s", cfg.Level)
	}
	if cfg.FilePath != "" {
		t.Errorf("expected no log file, got: %s", cfg.FilePath)
	}
	if cfg.MaxSizeMB != 10 || cfg.MaxFiles != 5 {
		t.Errorf("expected 10MB x 5 rotation, got: %dMB x %d", cfg.MaxSizeMB, cfg.MaxFiles)
	}

	debug := DebugConfig()
	if debug.Level != "debug" || debug.FilePath != DefaultLogPath() {
		t.Errorf("unexpected debug config: %+v", debug)
	}
}

func TestSetup_ConsoleOnly(t *testing.T) {
	var stderr bytes.Buffer
	logger, cleanup, err := Setup(Config{Level: "warn", Stderr: &stderr})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()

	logger.Info("hidden")
	logger.Warn("source_open_failed", "source", "missing.txt")

	out := stderr.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "msg=source_open_failed") || !strings.Contains(out, "source=missing.txt") {
		t.Errorf("expected text output, got: %q", out)
	}
}

func TestSetup_FileAndStderr(t *testing.T) {
	var stderr bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "logs", "ordgrep.log")

	logger, cleanup, err := Setup(Config{
		Level:     "debug",
		FilePath:  logPath,
		MaxSizeMB: 1,
		MaxFiles:  2,
		Stderr:    &stderr,
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Debug("search_started", "backend", "pool")
	cleanup()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &entry); err != nil {
		t.Fatalf("log file line is not JSON: %v", err)
	}
	if entry["msg"] != "search_started" || entry["backend"] != "pool" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if stderr.String() != string(content) {
		t.Errorf("stderr should mirror the file:\nstderr: %q\nfile: %q", stderr.String(), content)
	}
}

func TestSetupWorkerMode(t *testing.T) {
	var stderr bytes.Buffer
	logger := SetupWorkerMode(&stderr, "")

	logger.Info("hidden")
	logger.Error("frame_write_failed")

	out := stderr.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("default worker level should be warn: %q", out)
	}
	if !strings.Contains(out, "component=worker") {
		t.Errorf("expected component attribute: %q", out)
	}
}

func TestLevelFromString(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"INFO":    "INFO",
		"warning": "WARN",
		"warn":    "WARN",
		"error":   "ERROR",
		"bogus":   "INFO",
	}
	for in, want := range tests {
		if got := LevelFromString(in).String(); got != want {
			t.Errorf("LevelFromString(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestFindLogFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, err := FindLogFile(""); err == nil {
		t.Error("expected error when no log exists")
	}
	if _, err := FindLogFile("/nonexistent/ordgrep.log"); err == nil {
		t.Error("expected error for missing explicit path")
	}

	explicit := filepath.Join(t.TempDir(), "x.log")
	if err := os.WriteFile(explicit, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := FindLogFile(explicit)
	if err != nil || got != explicit {
		t.Errorf("FindLogFile(%q) = %q, %v", explicit, got, err)
	}
}

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ordgrep.log")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestViewer_Tail(t *testing.T) {
	path := writeLog(t,
		`{"time":"2026-01-01T10:00:00Z","level":"DEBUG","msg":"search_started","session_id":"aaaa1111-x"}`,
		`{"time":"2026-01-01T10:00:01Z","level":"WARN","msg":"source_open_failed","session_id":"aaaa1111-x","source":"a.txt"}`,
		`not json`,
		`{"time":"2026-01-01T10:00:02Z","level":"INFO","msg":"search_finished","session_id":"bbbb2222-y"}`,
	)

	tests := []struct {
		name string
		cfg  ViewerConfig
		n    int
		want []string
	}{
		{name: "all", n: 10, want: []string{"search_started", "source_open_failed", "", "search_finished"}},
		{name: "last two", n: 2, want: []string{"", "search_finished"}},
		{name: "level", cfg: ViewerConfig{Level: "info"}, n: 10, want: []string{"source_open_failed", "search_finished"}},
		{name: "session", cfg: ViewerConfig{Session: "aaaa"}, n: 10, want: []string{"search_started", "source_open_failed"}},
		{name: "pattern", cfg: ViewerConfig{Pattern: regexp.MustCompile(`a\.txt`)}, n: 10, want: []string{"source_open_failed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := NewViewer(tt.cfg, &bytes.Buffer{}).Tail(path, tt.n)
			if err != nil {
				t.Fatalf("Tail failed: %v", err)
			}
			var got []string
			for _, e := range entries {
				got = append(got, e.Msg)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestViewer_TailMissingFile(t *testing.T) {
	if _, err := NewViewer(ViewerConfig{}, &bytes.Buffer{}).Tail("/nonexistent.log", 5); err == nil {
		t.Error("expected error")
	}
}

func TestViewer_FormatEntry(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})

	entry := v.parseLine(`{"time":"2026-01-01T10:00:01.5Z","level":"WARN","msg":"unit_killed","session_id":"0123456789ab","source":"b.txt","reason":"timeout"}`)
	got := v.FormatEntry(entry)
	want := "10:00:01.500 WARN  [01234567] unit_killed reason=timeout source=b.txt"
	if got != want {
		t.Errorf("FormatEntry:\ngot:  %q\nwant: %q", got, want)
	}

	raw := v.parseLine("plain text")
	if v.FormatEntry(raw) != "plain text" {
		t.Errorf("invalid entries should print raw")
	}

	colored := NewViewer(ViewerConfig{}, &bytes.Buffer{})
	if !strings.Contains(colored.formatLevel("error"), "\033[31m") {
		t.Error("error level should be red")
	}
}

func TestViewer_Print(t *testing.T) {
	var out bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &out)
	v.Print([]LogEntry{{Raw: "one"}, {Raw: "two"}})
	if out.String() != "one\ntwo\n" {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestViewer_Follow(t *testing.T) {
	path := writeLog(t, `{"time":"2026-01-01T10:00:00Z","level":"INFO","msg":"old"}`)
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	entries := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()

	// Give Follow time to seek to the end before appending.
	time.Sleep(150 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"time":"2026-01-01T10:00:05Z","level":"INFO","msg":"new"}` + "\n")
	_ = f.Close()

	select {
	case e := <-entries:
		if e.Msg != "new" {
			t.Errorf("expected the appended entry, got %q", e.Msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no entry followed")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Follow returned %v", err)
	}
}

func TestRotatingWriter_ImmediateSync(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	w, err := NewRotatingWriter(logPath, 1, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	data := []byte(`{"msg":"test"}` + "\n")
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// Visible without closing the writer.
	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("expected %q, got %q", data, content)
	}

	w.SetImmediateSync(false)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
}

func TestRotatingWriter_Rotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "rotate.log")

	// 0 MB rotates on every write.
	w, err := NewRotatingWriter(logPath, 0, 2)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	data := bytes.Repeat([]byte("x"), 1024)
	for i := 0; i < 5; i++ {
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	for _, suffix := range []string{"", ".1.gz", ".2.gz"} {
		if _, err := os.Stat(logPath + suffix); err != nil {
			t.Errorf("%s should exist: %v", logPath+suffix, err)
		}
	}
	if _, err := os.Stat(logPath + ".3.gz"); !os.IsNotExist(err) {
		t.Error("rotated file .3.gz should not exist (beyond maxFiles)")
	}

	gens, err := RotatedLogs(logPath)
	if err != nil {
		t.Fatalf("RotatedLogs failed: %v", err)
	}
	if len(gens) != 2 || gens[0] != logPath+".1.gz" {
		t.Fatalf("expected newest generation first, got %v", gens)
	}
	rc, err := openGeneration(gens[0])
	if err != nil {
		t.Fatalf("openGeneration failed: %v", err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("failed to decompress: %v", err)
	}
	if !bytes.Equal(content, data) {
		t.Errorf("generation holds %d bytes, want %d", len(content), len(data))
	}
}

func TestViewer_TailSpansRotations(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "history.log")
	w, err := NewRotatingWriter(logPath, 0, 5)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	// Every write after the first rotates, one entry per generation.
	for i := 1; i <= 4; i++ {
		_, _ = fmt.Fprintf(w, `{"time":"2026-10-14T10:00:0%d.000Z","level":"INFO","msg":"entry_%d"}`+"\n", i, i)
	}
	_ = w.Close()

	v := NewViewer(ViewerConfig{NoColor: true}, io.Discard)
	entries, err := v.Tail(logPath, 3)
	if err != nil {
		t.Fatalf("Tail failed: %v", err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.Msg)
	}
	if strings.Join(got, ",") != "entry_2,entry_3,entry_4" {
		t.Errorf("expected the last three entries in order, got %v", got)
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent.log")
	w, err := NewRotatingWriter(logPath, 10, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = fmt.Fprintf(w, `{"id":%d,"iter":%d}`+"\n", id, j)
			}
		}(i)
	}
	wg.Wait()
	if err := w.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file should exist: %v", err)
	}
	if n := strings.Count(string(content), "\n"); n != 1000 {
		t.Errorf("expected 1000 lines, got %d", n)
	}
}
