package providers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"xivvy/internal/config"
)

func TestNewManagerDefaultsToMock(t *testing.T) {
	m, err := NewManager(config.Config{EmbedProviders: "", VectorSize: 384})
	require.NoError(t, err)
	require.Equal(t, 1, m.EmbedCount())
	require.Equal(t, "mock", m.EmbedProviderRefs()[0].Name)
}

func TestNewManagerRejectsUnknown(t *testing.T) {
	_, err := NewManager(config.Config{EmbedProviders: "qdrant", VectorSize: 384})
	require.Error(t, err)
}

func TestPreferredEmbedOrder(t *testing.T) {
	m, err := NewManager(config.Config{EmbedProviders: "mock|ollama:minilm", VectorSize: 384})
	require.NoError(t, err)
	require.Equal(t, []int{1, 0}, m.PreferredEmbedOrder())
}
