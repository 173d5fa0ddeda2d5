package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	want := [][]string{
		{"serve"},
		{"version"},
		{"config", "show"},
		{"api", "status"},
		{"api", "ocr"},
		{"api", "ocr-chinese"},
	}
	for _, path := range want {
		cmd, rest, err := rootCmd.Find(path)
		if err != nil || len(rest) != 0 {
			t.Errorf("command %v not found: %v", path, err)
			continue
		}
		if cmd.Name() != path[len(path)-1] {
			t.Errorf("Find(%v) = %s", path, cmd.Name())
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "ocr-server "+Version) {
		t.Errorf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "Git commit: "+GitCommit) {
		t.Errorf("missing commit line: %q", out)
	}
}

func TestConfigShow(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("OCR_SERVER_SERVER_PORT", "9100")

	out, err := execute(t, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	for _, want := range []string{"port: 9100", "language: japan", "language: ch"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigShow_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocr.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cfgFile = "" })

	out, err := execute(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(out, "level: debug") {
		t.Errorf("file value not applied:\n%s", out)
	}
}

func TestAPIStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"running","ocr_initialized":true,"service":"PaddleOCR Server"}`))
	}))
	defer srv.Close()

	if _, err := execute(t, "api", "status", "--server", srv.URL, "-o", "json"); err != nil {
		t.Errorf("api status failed: %v", err)
	}
}

func TestAPIOCR_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"detail":"OCR service not initialized"}`))
	}))
	defer srv.Close()

	img := filepath.Join(t.TempDir(), "page.png")
	if err := os.WriteFile(img, []byte("not really a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, "api", "ocr", img, "--server", srv.URL)
	if err == nil {
		t.Fatal("expected an error from a 503 response")
	}
	if !strings.Contains(err.Error(), "OCR service not initialized") {
		t.Errorf("error should carry the detail: %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)

	logger := newLogger(&buf, "json", level)
	logger.Info("dropped")
	logger.Warn("kept", "k", "v")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "kept" || rec["k"] != "v" {
		t.Errorf("unexpected record: %v", rec)
	}

	buf.Reset()
	level.Set(slog.LevelDebug)
	newLogger(&buf, "text", level).Debug("now visible")
	if !strings.Contains(buf.String(), "msg=\"now visible\"") {
		t.Errorf("text handler output: %q", buf.String())
	}
}
