package homeserver

import (
	"context"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticResolverBareURL(t *testing.T) {
	r, err := NewStaticResolver(map[string]string{"pk1": "https://hs.example.com"})
	require.NoError(t, err)
	addr, err := r.ResolveHomeserver(context.Background(), "pk1")
	require.NoError(t, err)
	assert.Equal(t, "https://hs.example.com", addr)
}

func TestStaticResolverDiscoveryToken(t *testing.T) {
	token := "pk:" + base58.Encode([]byte("capability-payload")) + "@hs.example.com"
	r, err := NewStaticResolver(map[string]string{"pk1": token})
	require.NoError(t, err)
	addr, err := r.ResolveHomeserver(context.Background(), "pk1")
	require.NoError(t, err)
	assert.Equal(t, "https://hs.example.com", addr)
}

func TestStaticResolverUnknownKey(t *testing.T) {
	r, err := NewStaticResolver(nil)
	require.NoError(t, err)
	_, err = r.ResolveHomeserver(context.Background(), "missing")
	assert.Error(t, err)
}

func TestStaticResolverMalformedToken(t *testing.T) {
	_, err := NewStaticResolver(map[string]string{"pk1": "garbage"})
	assert.Error(t, err)
}
