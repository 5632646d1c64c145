package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rgbkrk/honchkrow/internal/display"
	"github.com/rgbkrk/honchkrow/internal/kernel"
)

// postRunCell drives the full middleware-wrapped handler
func postRunCell(t *testing.T, server *Server, body string) RunCellResponse {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/run_cell", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.Handler().ServeHTTP(w, req)

	var resp RunCellResponse
	if w.Code != http.StatusOK {
		t.Errorf("run_cell status = %d, want 200; body %s", w.Code, w.Body.String())
		return resp
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Errorf("run_cell response is not valid JSON: %v", err)
	}
	return resp
}

func get(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleRunCellSuccess(t *testing.T) {
	session := &fakeSession{
		outcome: &kernel.Outcome{
			Success: true,
			Result:  &display.Data{Data: map[string]any{"text/plain": "42"}},
			Stdout:  "hello\n",
		},
	}
	server := setupTestServer(t, session)

	resp := postRunCell(t, server, `{"code": "print('hello')\n42"}`)

	if !resp.Success {
		t.Errorf("success = false, want true: %s", resp.Error)
	}
	if resp.Error != "" {
		t.Errorf("error = %q, want empty", resp.Error)
	}
	if resp.Stdout != "hello\n" {
		t.Errorf("stdout = %q, want hello\\n", resp.Stdout)
	}
	if resp.Stderr != "" {
		t.Errorf("stderr = %q, want empty", resp.Stderr)
	}
	if v, _ := resp.ExecuteResult.TextPlain(); v != "42" {
		t.Errorf("execute_result = %q, want 42", v)
	}

	if len(session.executedCodes) != 1 || session.executedCodes[0] != "print('hello')\n42" {
		t.Errorf("session received %v", session.executedCodes)
	}
}

func TestHandleRunCellFailure(t *testing.T) {
	session := &fakeSession{
		outcome: &kernel.Outcome{
			Success:     false,
			ErrorDetail: "name 'bogus' is not defined",
			Stdout:      "before\n",
		},
	}
	server := setupTestServer(t, session)

	resp := postRunCell(t, server, `{"code": "bogus"}`)

	if resp.Success {
		t.Error("success = true, want false")
	}
	if !strings.HasPrefix(resp.Error, "Error executing code: ") {
		t.Errorf("error = %q, want fixed prefix", resp.Error)
	}
	if resp.ExecuteResult != nil {
		t.Error("failed run should carry no execute_result")
	}
	if resp.Stdout != "before\n" {
		t.Errorf("stdout = %q, want output captured before the failure", resp.Stdout)
	}
}

func TestHandleRunCellPanicRecovery(t *testing.T) {
	session := &fakeSession{panicMsg: "adapter exploded"}
	server := setupTestServer(t, session)

	resp := postRunCell(t, server, `{"code": "anything"}`)

	if resp.Success {
		t.Error("success = true, want false after panic")
	}
	if !strings.Contains(resp.Error, "adapter exploded") {
		t.Errorf("error = %q, want panic detail", resp.Error)
	}
}

func TestHandleRunCellBadRequests(t *testing.T) {
	server := setupTestServer(t, &fakeSession{})

	tests := []struct {
		name           string
		method         string
		body           string
		expectedStatus int
	}{
		{"invalid JSON", http.MethodPost, "not json", http.StatusBadRequest},
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/run_cell", bytes.NewReader([]byte(tt.body)))
			w := httptest.NewRecorder()
			server.Handler().ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.expectedStatus)
			}
		})
	}
}

func TestHandleVariable(t *testing.T) {
	session := &fakeSession{
		variables: map[string]*display.Data{
			"x": {Data: map[string]any{"text/plain": "42"}},
		},
	}
	server := setupTestServer(t, session)

	w := get(t, server, "/api/variable/x")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "42") {
		t.Errorf("body = %s, want to contain 42", w.Body.String())
	}
}

func TestHandleVariableMissing(t *testing.T) {
	server := setupTestServer(t, &fakeSession{})

	// Missing variables are payload-level errors, still HTTP 200
	w := get(t, server, "/api/variable/y")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if !strings.Contains(resp.Error, "y") {
		t.Errorf("error = %q, want to reference missing name y", resp.Error)
	}
}

func TestHandleVariableRewritesImage(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte{0x89, 0x50, 0x4e, 0x47})
	session := &fakeSession{
		variables: map[string]*display.Data{
			"fig": {Data: map[string]any{display.MIMEPNG: encoded}},
		},
	}
	server := setupTestServer(t, session)

	w := get(t, server, "/api/variable/fig")

	var d display.Data
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatal(err)
	}
	if d.Data[display.MIMEPNG] != "/images/image-0.png" {
		t.Errorf("image/png = %v, want /images/image-0.png", d.Data[display.MIMEPNG])
	}
}

func TestImageRoundTrip(t *testing.T) {
	pngPayload := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	session := &fakeSession{
		outcome: &kernel.Outcome{
			Success: true,
			Displays: []display.Data{
				{Data: map[string]any{display.MIMEPNG: base64.StdEncoding.EncodeToString(pngPayload)}},
			},
		},
	}
	server := setupTestServer(t, session)

	resp := postRunCell(t, server, `{"code": "plot()"}`)
	if resp.Displays[0].Data[display.MIMEPNG] != "/images/image-0.png" {
		t.Fatalf("display not rewritten: %v", resp.Displays[0].Data)
	}

	w := get(t, server, "/images/image-0.png")
	if w.Code != http.StatusOK {
		t.Fatalf("image status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content-type = %q, want image/png", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), pngPayload) {
		t.Errorf("image bytes = %v, want %v", w.Body.Bytes(), pngPayload)
	}
}

func TestHandleImageNotFound(t *testing.T) {
	server := setupTestServer(t, &fakeSession{})

	w := get(t, server, "/images/image-42.png")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("404 body is not structured JSON: %v", err)
	}
	if !strings.Contains(resp.Error, "image-42.png") {
		t.Errorf("error = %q, want to name the missing image", resp.Error)
	}
}

func TestManifestIdempotent(t *testing.T) {
	server := setupTestServer(t, &fakeSession{})

	first := get(t, server, "/.well-known/ai-plugin.json")
	second := get(t, server, "/.well-known/ai-plugin.json")

	if first.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", first.Code)
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Error("manifest responses are not byte-identical")
	}

	var m pluginManifest
	if err := json.Unmarshal(first.Body.Bytes(), &m); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if m.Auth.Type != "none" {
		t.Errorf("auth type = %q, want none", m.Auth.Type)
	}
	if m.API.Type != "openapi" {
		t.Errorf("api type = %q, want openapi", m.API.Type)
	}
}

func TestOpenAPIDocument(t *testing.T) {
	server := setupTestServer(t, &fakeSession{})

	w := get(t, server, "/openapi.json")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}

	paths, ok := doc["paths"].(map[string]any)
	if !ok {
		t.Fatal("schema has no paths")
	}
	for _, p := range []string{"/api/run_cell", "/api/variable/{name}", "/images/{name}"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("schema missing path %s", p)
		}
	}
}

func TestHandleLogo(t *testing.T) {
	server := setupTestServer(t, &fakeSession{})

	w := get(t, server, "/logo.png")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content-type = %q, want image/png", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte{0x89, 'P', 'N', 'G'}) {
		t.Error("logo is not a PNG")
	}
}

func TestHandleHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server := setupTestServer(t, &fakeSession{})
		w := get(t, server, "/health")
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", w.Code)
		}
		if !strings.Contains(w.Body.String(), "healthy") {
			t.Errorf("body = %s", w.Body.String())
		}
	})

	t.Run("kernel down", func(t *testing.T) {
		server := setupTestServer(t, &fakeSession{pingErr: errors.New("kernel exited")})
		w := get(t, server, "/health")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
		if !strings.Contains(w.Body.String(), "kernel exited") {
			t.Errorf("body = %s", w.Body.String())
		}
	})
}

func TestHandleStats(t *testing.T) {
	server := setupTestServer(t, &fakeSession{outcome: &kernel.Outcome{Success: true}})

	postRunCell(t, server, `{"code": "1"}`)
	postRunCell(t, server, `{"code": "2"}`)

	w := get(t, server, "/api/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var snap struct {
		ExecutionsTotal int64 `json:"executions_total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.ExecutionsTotal != 2 {
		t.Errorf("executions_total = %d, want 2", snap.ExecutionsTotal)
	}
}

func TestCORS(t *testing.T) {
	server := setupTestServer(t, &fakeSession{})

	req := httptest.NewRequest(http.MethodOptions, "/api/run_cell", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("preflight status = %d, want 200", w.Code)
	}
	if origin := w.Header().Get("Access-Control-Allow-Origin"); origin != "https://chat.openai.com" {
		t.Errorf("allow-origin = %q", origin)
	}
}

// Overlapping run_cell requests must reach the session one at a time;
// the session's own lock is the serialization point and the server must
// not defeat it. The fake records the maximum concurrent entries.
func TestOverlappingExecutesSerialize(t *testing.T) {
	session := &fakeSession{outcome: &kernel.Outcome{Success: true}}
	server := setupTestServer(t, session)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := postRunCell(t, server, `{"code": "x += 1"}`)
			if !resp.Success {
				t.Errorf("overlapping execute failed: %s", resp.Error)
			}
		}()
	}
	wg.Wait()

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.maxInFlight != 1 {
		t.Errorf("max concurrent executes = %d, want 1", session.maxInFlight)
	}
	if len(session.executedCodes) != 10 {
		t.Errorf("executed %d cells, want 10", len(session.executedCodes))
	}
}
