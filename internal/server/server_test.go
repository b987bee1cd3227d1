package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/posecue/internal/app"
	"github.com/ayusman/posecue/internal/pnn"
	"github.com/ayusman/posecue/internal/robot"
)

func serve(s http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		rec := serve(s, http.MethodGet, "/api/health", nil)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", ct)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}
		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
			if rec := serve(s, method, "/api/health", nil); rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_OptionalRoutes(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/status", "/api/live", "/api/bindings", "/api/samples", "/api/events", "/api/plugins", "/api/stream", "/"} {
		if rec := serve(s, http.MethodGet, path, nil); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s without dependency: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestServer_StaticFiles(t *testing.T) {
	dir := t.TempDir()
	index := "<html><body>posecue</body></html>"
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(index), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	css := "body { color: red; }"
	if err := os.WriteFile(filepath.Join(dir, "style.css"), []byte(css), 0644); err != nil {
		t.Fatalf("failed to create test CSS file: %v", err)
	}

	s := New(Config{StaticDir: dir})

	tests := []struct {
		path string
		code int
		body string
	}{
		{"/", http.StatusOK, index},
		{"/style.css", http.StatusOK, css},
		{"/missing.html", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		rec := serve(s, http.MethodGet, tt.path, nil)
		if rec.Code != tt.code {
			t.Errorf("GET %s: expected status %d, got %d", tt.path, tt.code, rec.Code)
		}
		if tt.body != "" && rec.Body.String() != tt.body {
			t.Errorf("GET %s: expected body %q, got %q", tt.path, tt.body, rec.Body.String())
		}
	}
}

func TestServer_Status(t *testing.T) {
	status := app.NewStatus(true)
	status.SetPose(pnn.SittingOneHand)
	s := New(Config{Status: status})
	defer s.Close()

	rec := serve(s, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/status status = %d", rec.Code)
	}
	var snap app.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !snap.Enabled || snap.Pose != "sitting_1hand" || snap.PoseCode != 2 || snap.Windows != 1 {
		t.Errorf("snapshot = %+v", snap)
	}

	rec = serve(s, http.MethodPost, "/api/status", []byte(`{"enabled": false}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/status status = %d", rec.Code)
	}
	if status.Enabled() {
		t.Error("classification still enabled after POST")
	}

	for _, body := range []string{`{}`, `not json`} {
		if rec := serve(s, http.MethodPost, "/api/status", []byte(body)); rec.Code != http.StatusBadRequest {
			t.Errorf("POST %q: expected 400, got %d", body, rec.Code)
		}
	}
	if rec := serve(s, http.MethodDelete, "/api/status", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE: expected 405, got %d", rec.Code)
	}
}

func TestServer_Plugins(t *testing.T) {
	m := robot.NewManager(t.TempDir(), nil)
	m.Register(&robot.Plugin{Manifest: robot.Manifest{
		Name:      "arm",
		Version:   "1.0.0",
		Behaviors: []string{robot.BehaviorGrasp},
	}})
	s := New(Config{Plugins: m})

	rec := serve(s, http.MethodGet, "/api/plugins", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/plugins status = %d", rec.Code)
	}
	var response struct {
		Plugins []pluginResponse `json:"plugins"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Plugins) != 1 || response.Plugins[0].Name != "arm" || response.Plugins[0].Behaviors[0] != "grasp" {
		t.Errorf("plugins = %+v", response.Plugins)
	}
}
