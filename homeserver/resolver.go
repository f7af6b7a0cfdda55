package homeserver

import (
	"context"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/pubky-canvas/indexer/errors"
)

// StaticResolver is a minimal, config-driven Resolver: it looks a public
// key up in a fixed map of `pk:<base58-token>@<host>`-shaped entries. A
// production deployment would instead consult a real Pkarr-style DHT, which
// is out of scope here and treated as an injected capability (see spec
// design notes).
type StaticResolver struct {
	entries map[string]string // public key -> homeserver address
}

// NewStaticResolver builds a resolver from a raw config table mapping public
// keys to discovery tokens of the form "pk:<base58-token>@<host>", or to a
// bare "https://host" address passed straight through.
func NewStaticResolver(raw map[string]string) (*StaticResolver, error) {
	entries := make(map[string]string, len(raw))
	for pk, token := range raw {
		address, err := parseDiscoveryToken(token)
		if err != nil {
			return nil, errors.Wrapf(err, "resolver entry for %s", pk)
		}
		entries[pk] = address
	}
	return &StaticResolver{entries: entries}, nil
}

// ResolveHomeserver implements Resolver.
func (r *StaticResolver) ResolveHomeserver(_ context.Context, publicKey string) (string, error) {
	address, ok := r.entries[publicKey]
	if !ok {
		return "", errors.Newf("no homeserver registered for public key %s", publicKey)
	}
	return address, nil
}

// parseDiscoveryToken accepts either a bare "http(s)://host" address or a
// "pk:<base58>@<host>" capability-discovery token. The base58 payload is
// opaque here (it would carry a signed capability in a full Pkarr
// integration); it is decoded only to validate the token's shape.
func parseDiscoveryToken(token string) (string, error) {
	if strings.HasPrefix(token, "http://") || strings.HasPrefix(token, "https://") {
		return token, nil
	}

	if !strings.HasPrefix(token, "pk:") {
		return "", errors.Newf("unrecognized discovery token %q", token)
	}

	rest := strings.TrimPrefix(token, "pk:")
	parts := strings.SplitN(rest, "@", 2)
	if len(parts) != 2 {
		return "", errors.Newf("malformed discovery token %q, expected pk:<base58>@<host>", token)
	}

	if _, err := base58.Decode(parts[0]); err != nil {
		return "", errors.Wrapf(err, "decode discovery token payload in %q", token)
	}

	return "https://" + parts[1], nil
}
