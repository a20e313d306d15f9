package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockProviderDeterministic(t *testing.T) {
	p := NewMockProvider(384)
	req := EmbedRequest{Inputs: []string{"graph neural networks", "graph neural networks", "quantum chromodynamics"}, Dimension: 384}
	vecs, info, err := p.Embed(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "mock", info.Name)
	require.Len(t, vecs, 3)
	require.Len(t, vecs[0], 384)
	require.Equal(t, vecs[0], vecs[1])
	require.NotEqual(t, vecs[0], vecs[2])
}

func TestMockProviderDimensionOverride(t *testing.T) {
	p := NewMockProvider(384)
	vecs, _, err := p.Embed(context.Background(), EmbedRequest{Inputs: []string{"x"}, Dimension: 64})
	require.NoError(t, err)
	require.Len(t, vecs[0], 64)
}

func TestMockProviderEmptyInput(t *testing.T) {
	p := NewMockProvider(0)
	vecs, _, err := p.Embed(context.Background(), EmbedRequest{Inputs: []string{""}})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	require.Len(t, vecs[0], 384)
}
