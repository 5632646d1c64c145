// Package display models rich output events emitted by the execution
// session: a MIME-type-to-payload mapping plus optional metadata.
package display

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rgbkrk/honchkrow/internal/store"
)

// MIMEPNG is the one payload type rewritten into a URL reference
const MIMEPNG = "image/png"

// Data is a single display artifact. Payloads are text for textual MIME
// types and base64-encoded for binary ones.
type Data struct {
	Data     map[string]any `json:"data,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TextPlain returns the text/plain payload, if present
func (d *Data) TextPlain() (string, bool) {
	if d == nil || d.Data == nil {
		return "", false
	}
	v, ok := d.Data["text/plain"].(string)
	return v, ok
}

// Rewriter converts display artifacts into their transport-safe form by
// relocating inline PNG payloads into an image store and substituting a
// fetch URL. Each artifact is rewritten exactly once; the inline payload
// is replaced, not duplicated.
type Rewriter struct {
	store   store.ImageStore
	baseURL string
}

// NewRewriter creates a Rewriter. baseURL prefixes generated image links;
// empty yields relative links ("/images/<name>").
func NewRewriter(s store.ImageStore, baseURL string) *Rewriter {
	return &Rewriter{
		store:   s,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Rewrite registers any image/png payload with the store and replaces it
// with the fetch URL. Non-image entries pass through unchanged.
func (r *Rewriter) Rewrite(ctx context.Context, d *Data) error {
	if d == nil || d.Data == nil {
		return nil
	}

	payload, ok := d.Data[MIMEPNG]
	if !ok {
		return nil
	}

	encoded, ok := payload.(string)
	if !ok {
		return fmt.Errorf("image/png payload is %T, expected base64 string", payload)
	}

	raw, err := decodeBase64(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode image/png payload: %w", err)
	}

	name, err := r.store.Put(ctx, raw)
	if err != nil {
		return fmt.Errorf("failed to store image: %w", err)
	}

	d.Data[MIMEPNG] = r.baseURL + "/images/" + name
	return nil
}

// decodeBase64 decodes a base64 payload, tolerating the line breaks
// formatters insert into long image strings
func decodeBase64(s string) ([]byte, error) {
	cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(strings.TrimSpace(s))
	return base64.StdEncoding.DecodeString(cleaned)
}
