package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "canvas.db")
	db, err := OpenWithMigrations(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := New(db)
	require.NoError(t, s.InitMeta(context.Background(), 16))
	return s
}

func TestUpsertUserThenList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.UpsertUser(ctx, "pk1", "hs1"))
	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "pk1", users[0].PublicKey)
	require.Equal(t, "", users[0].Cursor)

	require.NoError(t, s.SetCursor(ctx, "pk1", "cursor-1"))
	users, err = s.ListUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, "cursor-1", users[0].Cursor)

	// Re-upserting does not reset the cursor.
	require.NoError(t, s.UpsertUser(ctx, "pk1", "hs2"))
	users, err = s.ListUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, "cursor-1", users[0].Cursor)
	require.Equal(t, "hs2", users[0].Homeserver)
}

func TestAcceptEventNewCell(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertUser(ctx, "pk1", "hs1"))

	ev := PixelEvent{ID: "0000000000001", UserPK: "pk1", X: 7, Y: 3, Color: 5, PlacedAt: 1000}
	delta := CanvasDelta{X: 7, Y: 3, Materialize: true, Color: 5, UserPK: "pk1", PlacedAt: 1000, CellExisted: false}

	outcome, err := s.AcceptEvent(ctx, ev, delta, "cursor-after-1")
	require.NoError(t, err)
	require.Equal(t, Accepted, outcome)

	cell, err := s.GetCell(ctx, 7, 3)
	require.NoError(t, err)
	require.NotNil(t, cell)
	require.Equal(t, 5, cell.Color)
	require.Equal(t, "pk1", cell.FirstUserPK)

	meta, err := s.GetMeta(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, meta.FilledCount)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, "cursor-after-1", users[0].Cursor)
}

func TestAcceptEventDuplicateIsNoOp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertUser(ctx, "pk1", "hs1"))

	ev := PixelEvent{ID: "0000000000001", UserPK: "pk1", X: 7, Y: 3, Color: 5, PlacedAt: 1000}
	delta := CanvasDelta{X: 7, Y: 3, Materialize: true, Color: 5, UserPK: "pk1", PlacedAt: 1000}

	_, err := s.AcceptEvent(ctx, ev, delta, "c1")
	require.NoError(t, err)

	outcome, err := s.AcceptEvent(ctx, ev, delta, "c2")
	require.NoError(t, err)
	require.Equal(t, Duplicate, outcome)

	meta, err := s.GetMeta(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, meta.FilledCount)

	// Cursor still advances on duplicate.
	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, "c2", users[0].Cursor)
}

func TestResizeRecomputesCounters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertUser(ctx, "pk1", "hs1"))

	ev := PixelEvent{ID: "0000000000001", UserPK: "pk1", X: 0, Y: 0, Color: 1, PlacedAt: 1000}
	delta := CanvasDelta{X: 0, Y: 0, Materialize: true, Color: 1, UserPK: "pk1", PlacedAt: 1000}
	_, err := s.AcceptEvent(ctx, ev, delta, "c1")
	require.NoError(t, err)

	require.NoError(t, s.Resize(ctx, 32))

	meta, err := s.GetMeta(ctx)
	require.NoError(t, err)
	require.Equal(t, 32, meta.Size)
	require.Equal(t, 1024, meta.TotalPixels)
	require.Equal(t, 1, meta.FilledCount)
	require.Equal(t, 0, meta.OverwrittenDistinctCount)
}

func TestPixelInfoHistory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertUser(ctx, "pk1", "hs1"))
	require.NoError(t, s.UpsertUser(ctx, "pk2", "hs1"))

	ev1 := PixelEvent{ID: "0000000000001", UserPK: "pk1", X: 0, Y: 0, Color: 5, PlacedAt: 1000}
	d1 := CanvasDelta{X: 0, Y: 0, Materialize: true, Color: 5, UserPK: "pk1", PlacedAt: 1000}
	_, err := s.AcceptEvent(ctx, ev1, d1, "c1")
	require.NoError(t, err)

	ev2 := PixelEvent{ID: "0000000000002", UserPK: "pk2", X: 0, Y: 0, Color: 7, PlacedAt: 1001}
	d2 := CanvasDelta{X: 0, Y: 0, Materialize: true, Color: 7, UserPK: "pk2", PlacedAt: 1001, CellExisted: true, FirstUserPK: "pk1", OverwrittenByOtherCount: 1, IncrementOverwrittenDistinct: true}
	_, err = s.AcceptEvent(ctx, ev2, d2, "c2")
	require.NoError(t, err)

	cell, history, err := s.PixelInfo(ctx, 0, 0)
	require.NoError(t, err)
	require.NotNil(t, cell)
	require.Equal(t, 7, cell.Color)
	require.Equal(t, 1, cell.OverwrittenByOtherCount)
	require.Len(t, history, 2)
	require.Equal(t, "0000000000001", history[0].ID)

	meta, err := s.GetMeta(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, meta.OverwrittenDistinctCount)
}

func TestRecentEventsOrderedNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.UpsertUser(ctx, "pk1", "hs1"))

	for i, id := range []string{"0000000000001", "0000000000002", "0000000000003"} {
		ev := PixelEvent{ID: id, UserPK: "pk1", X: i, Y: 0, Color: 1, PlacedAt: int64(1000 + i)}
		d := CanvasDelta{X: i, Y: 0, Materialize: true, Color: 1, UserPK: "pk1", PlacedAt: int64(1000 + i)}
		_, err := s.AcceptEvent(ctx, ev, d, "c")
		require.NoError(t, err)
	}

	events, err := s.RecentEvents(ctx, "pk1", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, "0000000000003", events[0].ID)
	require.Equal(t, "0000000000001", events[2].ID)
}
