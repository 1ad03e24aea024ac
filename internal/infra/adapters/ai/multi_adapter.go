package ai

import (
	"context"
	"errors"
	"strings"

	"telegram-bot-platform/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*MultiAIAdapter)(nil)

var errNoProvider = errors.New("no ai provider configured")

// modelPrefixes maps well-known model families to their provider when the
// model is not listed in ai.models.
var modelPrefixes = []struct{ prefix, provider string }{
	{"gemini", "gemini"},
	{"gpt", "openai"},
	{"o1", "openai"},
	{"o3", "openai"},
	{"o4", "openai"},
}

// MultiAIAdapter dispatches each call to the provider that serves the model.
// Unknown models and providers without credentials go to the default provider.
type MultiAIAdapter struct {
	fallback string
	adapters map[string]adapter.AIServiceAdapter
	explicit map[string]string
}

func NewMultiAIAdapter(
	defaultProvider string,
	byProvider map[string]adapter.AIServiceAdapter,
	modelToProvider map[string]string,
) *MultiAIAdapter {
	explicit := make(map[string]string, len(modelToProvider))
	for model, provider := range modelToProvider {
		explicit[model] = strings.ToLower(provider)
	}
	return &MultiAIAdapter{
		fallback: strings.ToLower(defaultProvider),
		adapters: byProvider,
		explicit: explicit,
	}
}

func (m *MultiAIAdapter) Provider() string { return m.fallback }

func (m *MultiAIAdapter) providerFor(model string) string {
	if p, ok := m.explicit[model]; ok {
		return p
	}
	l := strings.ToLower(model)
	for _, r := range modelPrefixes {
		if strings.HasPrefix(l, r.prefix) {
			return r.provider
		}
	}
	return m.fallback
}

func (m *MultiAIAdapter) route(model string) (adapter.AIServiceAdapter, error) {
	for _, p := range []string{m.providerFor(model), m.fallback} {
		if a, ok := m.adapters[p]; ok && a != nil {
			return a, nil
		}
	}
	return nil, errNoProvider
}

func (m *MultiAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	a, err := m.route(model)
	if err != nil {
		return 0, err
	}
	return a.CountTokens(ctx, model, messages)
}

func (m *MultiAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	a, err := m.route(model)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	return a.ChatWithUsage(ctx, model, messages)
}
