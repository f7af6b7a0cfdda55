// Package homeserver defines the capability interfaces the watcher depends
// on to reach per-user external object stores, plus a concrete SSRF-hardened
// HTTP implementation so the service runs standalone. Core packages depend
// only on the Client and Resolver interfaces, never on the concrete types.
package homeserver

import "context"

// EventRecord is one entry from a homeserver's event list: a record of a PUT
// (or other method) at a path, as seen by the external stream. Cursor is the
// opaque position marker that should be persisted once this record has been
// fully considered (accepted, rejected, or found duplicate).
type EventRecord struct {
	Method string
	Path   string
	Cursor string
}

// Client abstracts "list events for user since cursor" and "fetch object
// body" against a single homeserver. Concrete transport is external to the
// core packages.
type Client interface {
	// ListEvents returns up to limit event records for the given homeserver
	// address since cursor, in ascending order. An empty cursor lists from
	// the beginning of the stream.
	ListEvents(ctx context.Context, address, cursor string, limit int) (events []EventRecord, nextCursor string, err error)

	// FetchObject retrieves the raw body at path on the given homeserver
	// address.
	FetchObject(ctx context.Context, address, path string) ([]byte, error)
}

// Resolver abstracts "look up the homeserver address for a user public key"
// (the Pkarr capability in the original protocol). Implementations are
// injected; the watcher and HTTP API depend only on this interface.
type Resolver interface {
	ResolveHomeserver(ctx context.Context, publicKey string) (address string, err error)
}
