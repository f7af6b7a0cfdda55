package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pubky-canvas/indexer/broadcast"
	"github.com/pubky-canvas/indexer/credit"
	pkgerrors "github.com/pubky-canvas/indexer/errors"
	"github.com/pubky-canvas/indexer/homeserver"
	"github.com/pubky-canvas/indexer/idcodec"
	"github.com/pubky-canvas/indexer/store"
)

// fakeClient is an in-memory homeserver.Client for exercising the watcher
// without network I/O.
type fakeClient struct {
	events  map[string][]homeserver.EventRecord // keyed by homeserver address
	objects map[string][]byte                   // keyed by address+path
	fetchErrFor string
}

func (f *fakeClient) ListEvents(ctx context.Context, address, cursor string, limit int) ([]homeserver.EventRecord, string, error) {
	all := f.events[address]
	start := 0
	for i, e := range all {
		if e.Cursor == cursor {
			start = i + 1
			break
		}
	}
	if start >= len(all) {
		return nil, cursor, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	page := all[start:end]
	next := cursor
	if len(page) > 0 {
		next = page[len(page)-1].Cursor
	}
	return page, next, nil
}

func (f *fakeClient) FetchObject(ctx context.Context, address, path string) ([]byte, error) {
	if f.fetchErrFor != "" && path == f.fetchErrFor {
		return nil, errSimulatedFetchFailure
	}
	return f.objects[address+path], nil
}

var errSimulatedFetchFailure = errors.New("simulated fetch failure")

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "canvas.db")
	db, err := store.OpenWithMigrations(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	require.NoError(t, s.InitMeta(context.Background(), 16))
	return s
}

func testConfig() Config {
	return Config{
		PollInterval: time.Second,
		EventsLimit:  100,
		CreditParams: credit.Params{MaxCredits: 10, RegenInterval: 600},
	}
}

func placementID(t *testing.T, micros uint64) string {
	t.Helper()
	return idcodec.Encode(micros)
}

func TestTickAcceptsValidPlacement(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertUser(ctx, "pk1", "http://hs1"))

	id := placementID(t, 1_700_000_000_000_000)
	path := "/pub/pubky-canva/pixels/" + id
	body := []byte(`{"x":3,"y":4,"color":2}`)

	client := &fakeClient{
		events: map[string][]homeserver.EventRecord{
			"http://hs1": {{Method: "PUT", Path: path, Cursor: "cur-1"}},
		},
		objects: map[string][]byte{"http://hs1" + path: body},
	}

	b := broadcast.New(8)
	_, ch, ok := b.Subscribe()
	require.True(t, ok)

	w := New(s, client, b, testConfig())
	require.NoError(t, w.Tick(ctx))

	cell, err := s.GetCell(ctx, 3, 4)
	require.NoError(t, err)
	require.NotNil(t, cell)
	require.Equal(t, 2, cell.Color)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, "cur-1", users[0].Cursor)

	select {
	case msg := <-ch:
		require.Equal(t, broadcast.KindPixel, msg.Kind)
		require.Equal(t, 3, msg.X)
	default:
		t.Fatal("expected a broadcast message")
	}
}

func TestTickPermanentRejectAdvancesCursor(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertUser(ctx, "pk1", "http://hs1"))

	id := placementID(t, 1_700_000_000_000_000)
	path := "/pub/pubky-canva/pixels/" + id
	// color 99 is not in the palette: permanent reject.
	body := []byte(`{"x":3,"y":4,"color":99}`)

	client := &fakeClient{
		events: map[string][]homeserver.EventRecord{
			"http://hs1": {{Method: "PUT", Path: path, Cursor: "cur-1"}},
		},
		objects: map[string][]byte{"http://hs1" + path: body},
	}

	b := broadcast.New(8)
	w := New(s, client, b, testConfig())
	require.NoError(t, w.Tick(ctx))

	cell, err := s.GetCell(ctx, 3, 4)
	require.NoError(t, err)
	require.Nil(t, cell)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, "cur-1", users[0].Cursor)
}

func TestTickTransientFetchErrorStopsUserBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertUser(ctx, "pk1", "http://hs1"))

	id1 := placementID(t, 1_700_000_000_000_000)
	id2 := placementID(t, 1_700_000_000_100_000)
	path1 := "/pub/pubky-canva/pixels/" + id1
	path2 := "/pub/pubky-canva/pixels/" + id2

	client := &fakeClient{
		events: map[string][]homeserver.EventRecord{
			"http://hs1": {
				{Method: "PUT", Path: path1, Cursor: "cur-1"},
				{Method: "PUT", Path: path2, Cursor: "cur-2"},
			},
		},
		objects:     map[string][]byte{"http://hs1" + path2: []byte(`{"x":1,"y":1,"color":1}`)},
		fetchErrFor: path1,
	}

	b := broadcast.New(8)
	w := New(s, client, b, testConfig())
	require.NoError(t, w.Tick(ctx))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	// Cursor must not advance past the failed record; the batch aborts
	// before reaching path2.
	require.Equal(t, "", users[0].Cursor)
}

func TestSetConfigUpdatesPollInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newTestStore(t)
	client := &fakeClient{}
	b := broadcast.New(8)

	w := New(s, client, b, Config{
		PollInterval: time.Hour, // long enough that the initial ticker never fires on its own
		EventsLimit:  100,
		CreditParams: credit.Params{MaxCredits: 10, RegenInterval: 600},
	})
	w.Run(ctx)
	defer w.Stop()

	w.SetConfig(Config{
		PollInterval: 10 * time.Millisecond,
		EventsLimit:  100,
		CreditParams: credit.Params{MaxCredits: 10, RegenInterval: 600},
	})

	require.Equal(t, 10*time.Millisecond, w.config().PollInterval)
}

func TestRejectionReasonClassifiesBySentinelIdentity(t *testing.T) {
	require.Equal(t, "bad_id", rejectionReason(ErrBadID))
	require.Equal(t, "bad_payload", rejectionReason(ErrBadPayload))
	require.Equal(t, "out_of_bounds", rejectionReason(ErrOutOfBounds))
	require.Equal(t, "bad_color", rejectionReason(ErrBadColor))
	require.Equal(t, "future", rejectionReason(ErrFuturePlacement))
	require.Equal(t, "insufficient_credit", rejectionReason(ErrInsufficientCredit))
	// Wrapping a sentinel must still classify correctly via errors.Is.
	require.Equal(t, "bad_id", rejectionReason(pkgerrors.Wrap(ErrBadID, "context")))
	require.Equal(t, "unknown", rejectionReason(errors.New("some other failure")))
}

func TestTickIgnoresNonPixelPaths(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertUser(ctx, "pk1", "http://hs1"))

	client := &fakeClient{
		events: map[string][]homeserver.EventRecord{
			"http://hs1": {{Method: "PUT", Path: "/pub/other/thing", Cursor: "cur-1"}},
		},
	}

	b := broadcast.New(8)
	w := New(s, client, b, testConfig())
	require.NoError(t, w.Tick(ctx))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	// Not a recognized pixel path: no cursor advance, no materialization.
	require.Equal(t, "", users[0].Cursor)
}
