package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string { return s.name }
func (s stubProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return ChatResponse{}, nil
}
func (s stubProvider) Stream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, <-chan error) {
	ch := make(chan StreamChunk)
	errCh := make(chan error)
	close(ch)
	close(errCh)
	return ch, errCh
}

func TestRegistryResolvesDefault(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterProvider("openai", stubProvider{name: "openai"})
	reg.RegisterModel("fixer", ModelRoute{Provider: "openai", Model: "gpt-4o"}, true)

	p, route, err := reg.Resolve("")
	require.NoError(t, err)
	require.Equal(t, "openai", p.Name())
	require.Equal(t, "gpt-4o", route.Model)
	require.Equal(t, "fixer", route.Name)
}

func TestRegistryUnknownModel(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterProvider("openai", stubProvider{name: "openai"})

	_, _, err := reg.Resolve("ghost")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not registered")
}

func TestRegistryUnknownProvider(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterModel("fixer", ModelRoute{Provider: "missing", Model: "m"}, true)

	_, _, err := reg.Resolve("fixer")
	require.Error(t, err)
	require.Contains(t, err.Error(), "provider")
}
