package vision

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name   string
	result json.RawMessage
	err    error
	calls  int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Analyze(ctx context.Context, in Input, systemPrompt, userPrompt string, schema json.RawMessage, progress ProgressFunc) (json.RawMessage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestFallbackProvider_UsesPrimaryOnSuccess(t *testing.T) {
	primary := &fakeProvider{name: "primary", result: json.RawMessage(`{"ok":true}`)}
	secondary := &fakeProvider{name: "secondary"}
	f := NewFallbackProvider(primary, secondary)

	out, err := f.Analyze(context.Background(), Input{}, "sys", "user", nil, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
	assert.Equal(t, "primary", f.Name())
	assert.Equal(t, 0, secondary.calls)
}

func TestFallbackProvider_SwitchesOnRetryableError(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: &ProviderError{Provider: "primary", StatusCode: 503, Retryable: true}}
	secondary := &fakeProvider{name: "secondary", result: json.RawMessage(`{"ok":true}`)}
	f := NewFallbackProvider(primary, secondary)

	var messages []string
	out, err := f.Analyze(context.Background(), Input{}, "sys", "user", nil, func(pct int, msg string) {
		messages = append(messages, msg)
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))
	assert.Equal(t, "secondary", f.Name())
	assert.Equal(t, 1, secondary.calls)
	assert.NotEmpty(t, messages)
}

func TestFallbackProvider_DoesNotSwitchOnTerminalError(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: &ErrPayloadTooLarge{Provider: "primary", Limit: 10, Actual: 20}}
	secondary := &fakeProvider{name: "secondary", result: json.RawMessage(`{"ok":true}`)}
	f := NewFallbackProvider(primary, secondary)

	_, err := f.Analyze(context.Background(), Input{}, "sys", "user", nil, nil)
	require.Error(t, err)
	assert.Equal(t, 0, secondary.calls)
}
