// Package vision implements C4/C5: pluggable OCR backends for lab report
// images and PDFs, and a primary/secondary fallback wrapper over them.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
)

// Input is the payload handed to a provider's Analyze call. Exactly one of
// PDFBytes or Images should be set; a provider that cannot accept the one
// given returns ErrUnsupportedInput so the caller (pkg/ingest) knows to
// rasterize before falling back.
type Input struct {
	PDFBytes []byte
	Images   [][]byte // PNG pages, already rasterized and resized
}

// ProgressFunc reports coarse progress during a potentially slow OCR call.
type ProgressFunc func(percent int, message string)

// Provider analyzes a lab report document and returns JSON conforming to
// schema. Implementations must not silently drop required fields: every
// property named in schema is present in the returned object, using null
// rather than omission where a value is unknown.
type Provider interface {
	// Name identifies the provider for logging and the "actually used
	// adapter" attribution FallbackProvider exposes.
	Name() string
	Analyze(ctx context.Context, in Input, systemPrompt, userPrompt string, schema json.RawMessage, progress ProgressFunc) (json.RawMessage, error)
}

// ProviderError carries the information FallbackProvider needs to decide
// whether to fail over: an HTTP-shaped status code, the provider that
// produced it, and whether the provider's own internal retries were
// exhausted versus the request was rejected outright (e.g. payload too
// large, which is never retryable).
type ProviderError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("vision provider %s failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ErrPayloadTooLarge is returned before any network round-trip when the
// input exceeds a provider's documented size ceiling.
type ErrPayloadTooLarge struct {
	Provider string
	Limit    int
	Actual   int
}

func (e *ErrPayloadTooLarge) Error() string {
	return fmt.Sprintf("%s: payload %d bytes exceeds limit %d bytes", e.Provider, e.Actual, e.Limit)
}

// ErrUnsupportedInput is returned when a provider is given an input shape
// it cannot accept (e.g. PDF bytes handed to an images-only provider).
var ErrUnsupportedInput = fmt.Errorf("vision: input type not supported by this provider")
