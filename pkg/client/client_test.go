package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/rgbkrk/honchkrow/internal/display"
	"github.com/rgbkrk/honchkrow/internal/kernel"
	"github.com/rgbkrk/honchkrow/internal/server"
	"github.com/rgbkrk/honchkrow/internal/store"
)

var pngPayload = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

// stubSession is a canned kernel.Session for client round-trip tests
type stubSession struct{}

func (stubSession) Execute(ctx context.Context, code string) (*kernel.Outcome, error) {
	if code == "boom" {
		return &kernel.Outcome{Success: false, ErrorDetail: "boom"}, nil
	}
	return &kernel.Outcome{
		Success: true,
		Result:  &display.Data{Data: map[string]any{"text/plain": "42"}},
		Stdout:  "hello\n",
		Displays: []display.Data{
			{Data: map[string]any{display.MIMEPNG: base64.StdEncoding.EncodeToString(pngPayload)}},
		},
	}, nil
}

func (stubSession) Lookup(ctx context.Context, name string) (*display.Data, error) {
	if name != "x" {
		return nil, &kernel.NotDefinedError{Name: name}
	}
	return &display.Data{Data: map[string]any{"text/plain": "42"}}, nil
}

func (stubSession) Close() error { return nil }

func setupTestAPI(t *testing.T) *Client {
	t.Helper()

	srv := server.NewServer(server.Config{
		Session: stubSession{},
		Images:  store.NewMemory(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c, err := New(Config{BaseURL: ts.URL})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNew(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for missing base URL")
	}

	c, err := New(Config{BaseURL: "http://localhost:8000/"})
	if err != nil {
		t.Fatal(err)
	}
	if c.baseURL != "http://localhost:8000" {
		t.Errorf("baseURL = %q, trailing slash should be trimmed", c.baseURL)
	}
}

func TestRunCell(t *testing.T) {
	c := setupTestAPI(t)
	ctx := context.Background()

	envelope, err := c.RunCell(ctx, "x = 42")
	if err != nil {
		t.Fatalf("RunCell() error: %v", err)
	}
	if !envelope.Success {
		t.Fatalf("envelope failed: %s", envelope.Error)
	}
	if envelope.Stdout != "hello\n" {
		t.Errorf("stdout = %q", envelope.Stdout)
	}
	if v, _ := envelope.ExecuteResult.TextPlain(); v != "42" {
		t.Errorf("execute_result = %q", v)
	}

	// Execution failure arrives inside the envelope, not as a client error
	envelope, err = c.RunCell(ctx, "boom")
	if err != nil {
		t.Fatalf("RunCell() error: %v", err)
	}
	if envelope.Success {
		t.Error("expected in-band failure")
	}
}

func TestVariable(t *testing.T) {
	c := setupTestAPI(t)
	ctx := context.Background()

	d, err := c.Variable(ctx, "x")
	if err != nil {
		t.Fatalf("Variable() error: %v", err)
	}
	if v, _ := d.TextPlain(); v != "42" {
		t.Errorf("value = %q, want 42", v)
	}

	_, err = c.Variable(ctx, "y")
	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("Variable(y) error = %v, want LookupError", err)
	}
}

func TestImage(t *testing.T) {
	c := setupTestAPI(t)
	ctx := context.Background()

	// Produce an image via a cell, then fetch it through the store
	envelope, err := c.RunCell(ctx, "plot()")
	if err != nil {
		t.Fatal(err)
	}
	url, _ := envelope.Displays[0].Data[display.MIMEPNG].(string)
	if url != "/images/image-0.png" {
		t.Fatalf("display url = %q", url)
	}

	data, err := c.Image(ctx, "image-0.png")
	if err != nil {
		t.Fatalf("Image() error: %v", err)
	}
	if !bytes.Equal(data, pngPayload) {
		t.Errorf("image bytes = %v, want %v", data, pngPayload)
	}

	_, err = c.Image(ctx, "image-9.png")
	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("Image(missing) error = %v, want LookupError", err)
	}
}

func TestManifestAndHealth(t *testing.T) {
	c := setupTestAPI(t)
	ctx := context.Background()

	first, err := c.Manifest(ctx)
	if err != nil {
		t.Fatalf("Manifest() error: %v", err)
	}
	second, err := c.Manifest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("manifest is not byte-identical across fetches")
	}

	if err := c.Health(ctx); err != nil {
		t.Errorf("Health() error: %v", err)
	}
}
