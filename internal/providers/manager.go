package providers

import (
	"fmt"
	"strings"

	"xivvy/internal/config"
)

type NamedEmbedProvider struct {
	Ref      ProviderRef
	Provider EmbeddingProvider
}

// Manager owns the configured embedding providers in declaration order.
type Manager struct {
	embedProviders []NamedEmbedProvider
}

func NewManager(cfg config.Config) (*Manager, error) {
	refs := ParseProviderList(cfg.EmbedProviders)

	m := &Manager{}
	for _, ref := range refs {
		p, err := buildProvider(ref, cfg.VectorSize)
		if err != nil {
			return nil, err
		}
		m.embedProviders = append(m.embedProviders, NamedEmbedProvider{Ref: ref, Provider: p})
	}
	if len(m.embedProviders) == 0 {
		m.embedProviders = []NamedEmbedProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider(cfg.VectorSize)}}
	}
	return m, nil
}

func (m *Manager) EmbedProviderByIndex(i int) (EmbeddingProvider, ProviderRef) {
	if i < 0 || i >= len(m.embedProviders) {
		i = 0
	}
	return m.embedProviders[i].Provider, m.embedProviders[i].Ref
}

func (m *Manager) EmbedCount() int {
	return len(m.embedProviders)
}

func (m *Manager) EmbedProviderRefs() []ProviderRef {
	out := make([]ProviderRef, 0, len(m.embedProviders))
	for i := range m.embedProviders {
		out = append(out, m.embedProviders[i].Ref)
	}
	return out
}

// PreferredEmbedOrder yields provider indexes with real providers before mock,
// so the mock only serves as a last-resort fallback.
func (m *Manager) PreferredEmbedOrder() []int {
	n := len(m.embedProviders)
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if strings.ToLower(m.embedProviders[i].Ref.Name) != "mock" {
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if strings.ToLower(m.embedProviders[i].Ref.Name) == "mock" {
			out = append(out, i)
		}
	}
	return out
}

func buildProvider(ref ProviderRef, dim int) (EmbeddingProvider, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(dim), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
