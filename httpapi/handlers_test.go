package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pubky-canvas/indexer/broadcast"
	"github.com/pubky-canvas/indexer/credit"
	"github.com/pubky-canvas/indexer/store"
)

type fakeResolver struct {
	addr string
	err  error
}

func (f fakeResolver) ResolveHomeserver(ctx context.Context, publicKey string) (string, error) {
	return f.addr, f.err
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "canvas.db")
	db, err := store.OpenWithMigrations(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	require.NoError(t, s.InitMeta(context.Background(), 16))

	srv := New(s, broadcast.New(8), fakeResolver{addr: "http://hs1"}, credit.Params{MaxCredits: 10, RegenInterval: 600}, 5*time.Second)
	return srv, s
}

func TestHandleCanvasEmpty(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/canvas", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body canvasResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 16, body.Size)
	require.Empty(t, body.Pixels)
}

func TestHandlePixelNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/canvas/pixel/3/4", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePixelFound(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertUser(ctx, "pk1", "hs1"))
	ev := store.PixelEvent{ID: "0000000000001", UserPK: "pk1", X: 3, Y: 4, Color: 2, PlacedAt: 1000}
	delta := store.CanvasDelta{X: 3, Y: 4, Materialize: true, Color: 2, UserPK: "pk1", PlacedAt: 1000}
	_, err := s.AcceptEvent(ctx, ev, delta, "c1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/canvas/pixel/3/4", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body pixelInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Current)
	require.Equal(t, 2, body.Current.Color)
	require.Len(t, body.History, 1)
}

func TestHandlePalette(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/canvas/palette", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 16)
}

func TestHandleIngestRegistersUser(t *testing.T) {
	srv, s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPut, "/api/ingest/pk1", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)

	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "pk1", users[0].PublicKey)
	require.Equal(t, "http://hs1", users[0].Homeserver)
}

func TestHandleCreditsNoHistory(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/user/pk1/credits", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body creditsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 10, body.Credits)
	require.Equal(t, 10, body.MaxCredits)
}

func TestHandleHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
