package providers

import "strings"

// ProviderRef is one entry of a pipe-separated provider list, e.g.
// "ollama:minilm|openai:prod|mock". The optional suffix after the colon
// selects a key alias or model for that provider.
type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}

// ParseProviderList splits a provider-list string into refs, preserving
// order. An empty or all-blank list falls back to the mock provider.
func ParseProviderList(raw string) []ProviderRef {
	parts := strings.Split(raw, "|")
	out := make([]ProviderRef, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ref := ProviderRef{Raw: p}
		if name, alias, ok := strings.Cut(p, ":"); ok {
			ref.Name = strings.TrimSpace(name)
			ref.KeyAlias = strings.TrimSpace(alias)
		} else {
			ref.Name = p
		}
		out = append(out, ref)
	}
	if len(out) == 0 {
		out = append(out, ProviderRef{Raw: "mock", Name: "mock"})
	}
	return out
}
