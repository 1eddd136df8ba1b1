package panel

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHandlerEmbedded(t *testing.T) {
	h := Handler("")

	tests := []struct {
		name     string
		target   string
		contains string
	}{
		{"root", "/", "<!DOCTYPE html>"},
		{"script", "/app.js", "machine.state_changed"},
		{"stylesheet", "/style.css", "border-collapse"},
		{"deep link falls back to index", "/machines/light", "<!DOCTYPE html>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, h, http.MethodGet, tt.target)
			if rec.Code != http.StatusOK {
				t.Fatalf("GET %s status = %d, want 200", tt.target, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("GET %s body does not contain %q", tt.target, tt.contains)
			}
			if got := rec.Header().Get("Cache-Control"); got != "no-cache, must-revalidate" {
				t.Errorf("Cache-Control = %q", got)
			}
		})
	}
}

func TestHandlerRejectsWrites(t *testing.T) {
	rec := serve(t, Handler(""), http.MethodPost, "/")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST / status = %d, want 405", rec.Code)
	}
}

func TestHandlerDevDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<!DOCTYPE html><p>dev build</p>"), 0o600); err != nil {
		t.Fatal(err)
	}

	rec := serve(t, Handler(dir), http.MethodGet, "/")
	if !strings.Contains(rec.Body.String(), "dev build") {
		t.Errorf("dev directory not served, body %q", rec.Body.String())
	}

	rec = serve(t, Handler(filepath.Join(dir, "missing")), http.MethodGet, "/")
	if !strings.Contains(rec.Body.String(), "machine") {
		t.Error("missing dev directory should fall back to embedded assets")
	}
}
