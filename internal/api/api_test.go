package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

type testEndpoint struct {
	method, path string
	requiresInit bool
	noCommand    bool
}

func (e *testEndpoint) Route() (string, string, http.HandlerFunc) {
	return e.method, e.path, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, e.path)
	}
}

func (e *testEndpoint) RequiresInit() bool { return e.requiresInit }

func (e *testEndpoint) Command(getServerURL func() string) *cobra.Command {
	if e.noCommand {
		return nil
	}
	return &cobra.Command{Use: strings.TrimPrefix(e.path, "/")}
}

func TestRegistry_RegisterRoutes(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&testEndpoint{method: "GET", path: "/"})
	reg.Register(&testEndpoint{method: "POST", path: "/ocr", requiresInit: true})
	reg.Register(&testEndpoint{method: "POST", path: "/ocr-chinese"})

	guarded := 0
	mux := http.NewServeMux()
	reg.RegisterRoutes(mux, func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			guarded++
			next(w, r)
		}
	})

	tests := []struct {
		method, path string
		wantStatus   int
		wantBody     string
	}{
		{"GET", "/", http.StatusOK, "/"},
		{"POST", "/ocr", http.StatusOK, "/ocr"},
		{"POST", "/ocr-chinese", http.StatusOK, "/ocr-chinese"},
		{"GET", "/ocr", http.StatusMethodNotAllowed, ""},
		{"GET", "/missing", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.wantStatus {
			t.Errorf("%s %s: status %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
		}
		if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
			t.Errorf("%s %s: body %q, want %q", tt.method, tt.path, rec.Body.String(), tt.wantBody)
		}
	}

	if guarded != 1 {
		t.Errorf("init middleware ran %d times, want 1", guarded)
	}
}

func TestRegistry_BuildCommands(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&testEndpoint{method: "GET", path: "/status"})
	reg.Register(&testEndpoint{method: "GET", path: "/hidden", noCommand: true})

	cmd := reg.BuildCommands(func() string { return "http://localhost" })
	if cmd.Use != "api" {
		t.Errorf("Use: got %q", cmd.Use)
	}
	if n := len(cmd.Commands()); n != 1 {
		t.Errorf("expected 1 subcommand, got %d", n)
	}
	if len(reg.Endpoints()) != 2 {
		t.Errorf("Endpoints: got %d", len(reg.Endpoints()))
	}
}

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"detail":"Not Found"}`)
			return
		}
		_, _ = io.WriteString(w, `{"status":"running"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL + "/")

	var resp struct {
		Status string `json:"status"`
	}
	if err := client.Get(context.Background(), "/", &resp); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if resp.Status != "running" {
		t.Errorf("status: got %q", resp.Status)
	}

	err := client.Get(context.Background(), "/nope", nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusNotFound || se.Detail != "Not Found" {
		t.Errorf("unexpected error: %+v", se)
	}
}

func TestClient_Upload(t *testing.T) {
	var gotName string
	var gotContent []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, fh, err := r.FormFile(FileField)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, "plain failure")
			return
		}
		defer f.Close()
		gotName = fh.Filename
		gotContent, _ = io.ReadAll(f)
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "ok", "blocks": 1})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "scan.png")
	if err := os.WriteFile(path, []byte("image-bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	var resp struct {
		Text   string `json:"text"`
		Blocks int    `json:"blocks"`
	}
	if err := NewClient(srv.URL).UploadFile(context.Background(), "/ocr", path, &resp); err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}
	if resp.Text != "ok" || resp.Blocks != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if gotName != "scan.png" || string(gotContent) != "image-bytes" {
		t.Errorf("server saw %q with %q", gotName, gotContent)
	}

	if err := NewClient(srv.URL).UploadFile(context.Background(), "/ocr", filepath.Join(t.TempDir(), "missing.png"), nil); err == nil {
		t.Error("expected an error for a missing local file")
	}
}

func TestClient_PlainErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down\n")
	}))
	defer srv.Close()

	err := NewClient(srv.URL).Upload(context.Background(), "/ocr", "a.png", strings.NewReader("x"), nil)
	if err == nil || err.Error() != "server error (502): upstream down" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOutputTo(t *testing.T) {
	data := map[string]any{"text": "こんにちは <b>", "blocks": 2}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := OutputTo(&buf, OutputFormatJSON, data); err != nil {
			t.Fatalf("OutputTo failed: %v", err)
		}
		if !strings.Contains(buf.String(), `"text": "こんにちは <b>"`) {
			t.Errorf("unexpected JSON: %s", buf.String())
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := OutputTo(&buf, OutputFormatYAML, data); err != nil {
			t.Fatalf("OutputTo failed: %v", err)
		}
		if !strings.Contains(buf.String(), "blocks: 2") {
			t.Errorf("unexpected YAML: %s", buf.String())
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if err := OutputTo(io.Discard, "xml", data); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestSetOutputFormat(t *testing.T) {
	defer SetOutputFormat("yaml")

	SetOutputFormat("json")
	if GetOutputFormat() != OutputFormatJSON {
		t.Errorf("got %s", GetOutputFormat())
	}
	SetOutputFormat("bogus")
	if GetOutputFormat() != DefaultOutput {
		t.Errorf("unknown format should fall back, got %s", GetOutputFormat())
	}
}
