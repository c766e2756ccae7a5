package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
)

// FallbackProvider wraps a primary and secondary Provider. On a retryable
// error class from Primary (after Primary's own internal retries are
// exhausted), it switches to Secondary once per call and reports the
// switch through progress — the same progress-callback shape the
// ingestion job and onboarding insight use.
type FallbackProvider struct {
	Primary   Provider
	Secondary Provider

	lastUsed string
}

// NewFallbackProvider builds a wrapper over the two adapters.
func NewFallbackProvider(primary, secondary Provider) *FallbackProvider {
	return &FallbackProvider{Primary: primary, Secondary: secondary}
}

// Name returns the adapter actually used by the most recent Analyze call,
// so downstream logs and stored generation metadata attribute correctly.
func (f *FallbackProvider) Name() string {
	if f.lastUsed != "" {
		return f.lastUsed
	}
	return f.Primary.Name()
}

func (f *FallbackProvider) Analyze(ctx context.Context, in Input, systemPrompt, userPrompt string, schema json.RawMessage, progress ProgressFunc) (json.RawMessage, error) {
	result, primaryErr := f.Primary.Analyze(ctx, in, systemPrompt, userPrompt, schema, progress)
	if primaryErr == nil {
		f.lastUsed = f.Primary.Name()
		return result, nil
	}

	if !isFailoverEligible(primaryErr) {
		f.lastUsed = f.Primary.Name()
		return nil, primaryErr
	}

	if progress != nil {
		progress(0, fmt.Sprintf("switched to backup provider after %s failure", f.Primary.Name()))
	}

	result, secondaryErr := f.Secondary.Analyze(ctx, in, systemPrompt, userPrompt, schema, progress)
	if secondaryErr == nil {
		f.lastUsed = f.Secondary.Name()
		return result, nil
	}

	f.lastUsed = f.Secondary.Name()
	return nil, fmt.Errorf("both vision providers failed: primary (%s): %w; secondary (%s): %v",
		f.Primary.Name(), primaryErr, f.Secondary.Name(), secondaryErr)
}

// isFailoverEligible reports whether an error class justifies switching
// providers rather than surfacing the failure: rate limit, overload, 5xx,
// or a network-level failure. A terminal client error (bad schema,
// payload too large) is never eligible — the secondary would fail the
// same way.
func isFailoverEligible(err error) bool {
	var tooLarge *ErrPayloadTooLarge
	if errors.As(err, &tooLarge) {
		return false
	}
	var perr *ProviderError
	if errors.As(err, &perr) && perr.Retryable {
		return true
	}
	// The adapters wrap transport failures in a ProviderError with no
	// HTTP status, so look through it for the network error itself.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
