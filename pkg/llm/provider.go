package llm

import "fmt"

// Provider names the supported backends, mirroring config.VisionProvider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// New builds a client for the given provider. apiKey must belong to that
// provider; cmd/labtrace selects the key from config based on Provider.
func New(p Provider, apiKey string, retry RetryPolicy) (interface {
	ChatClient
	StructuredClient
}, error) {
	switch p {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey, retry), nil
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey, retry), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", p)
	}
}
