package httpapi

import (
	"net/http"
	"strconv"

	"github.com/pubky-canvas/indexer/credit"
	"github.com/pubky-canvas/indexer/logger"
	"github.com/pubky-canvas/indexer/palette"
)

type pixelDTO struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Color    int    `json:"color"`
	UserPK   string `json:"user_pk"`
	PlacedAt int64  `json:"placed_at"`
}

type canvasResponse struct {
	Size   int        `json:"size"`
	Pixels []pixelDTO `json:"pixels"`
}

func (s *Server) handleCanvas(w http.ResponseWriter, r *http.Request) {
	size, cells, err := s.store.CanvasSnapshot(r.Context())
	if err != nil {
		logger.Errorw("canvas snapshot failed", logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to read canvas")
		return
	}

	pixels := make([]pixelDTO, len(cells))
	for i, c := range cells {
		pixels[i] = pixelDTO{X: c.X, Y: c.Y, Color: c.Color, UserPK: c.LastUserPK, PlacedAt: c.LastPlacedAt}
	}

	writeJSON(w, http.StatusOK, canvasResponse{Size: size, Pixels: pixels})
}

type canvasMetaResponse struct {
	Size               int `json:"size"`
	TotalPixels        int `json:"total_pixels"`
	Filled             int `json:"filled"`
	Overwritten        int `json:"overwritten"`
	MaxCredits         int `json:"max_credits"`
	CreditRegenSeconds int `json:"credit_regen_seconds"`
}

func (s *Server) handleCanvasMeta(w http.ResponseWriter, r *http.Request) {
	meta, err := s.store.GetMeta(r.Context())
	if err != nil {
		logger.Errorw("get canvas meta failed", logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to read canvas metadata")
		return
	}

	writeJSON(w, http.StatusOK, canvasMetaResponse{
		Size:               meta.Size,
		TotalPixels:        meta.TotalPixels,
		Filled:             meta.FilledCount,
		Overwritten:        meta.OverwrittenDistinctCount,
		MaxCredits:         s.creditParams.MaxCredits,
		CreditRegenSeconds: int(s.creditParams.RegenInterval),
	})
}

type historyEntryDTO struct {
	ID       string `json:"id"`
	UserPK   string `json:"user_pk"`
	Color    int    `json:"color"`
	PlacedAt int64  `json:"placed_at"`
}

type pixelInfoResponse struct {
	Current *pixelDTO         `json:"current"`
	History []historyEntryDTO `json:"history"`
}

func (s *Server) handlePixel(w http.ResponseWriter, r *http.Request) {
	x, err := strconv.Atoi(r.PathValue("x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_coordinate", "x must be an integer")
		return
	}
	y, err := strconv.Atoi(r.PathValue("y"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_coordinate", "y must be an integer")
		return
	}

	cell, history, err := s.store.PixelInfo(r.Context(), x, y)
	if err != nil {
		logger.Errorw("pixel info failed", logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to read pixel")
		return
	}
	if cell == nil {
		writeError(w, http.StatusNotFound, "empty_cell", "cell has never been painted")
		return
	}

	hist := make([]historyEntryDTO, len(history))
	for i, e := range history {
		hist[i] = historyEntryDTO{ID: e.ID, UserPK: e.UserPK, Color: e.Color, PlacedAt: e.PlacedAt}
	}

	current := pixelDTO{X: cell.X, Y: cell.Y, Color: cell.Color, UserPK: cell.LastUserPK, PlacedAt: cell.LastPlacedAt}
	writeJSON(w, http.StatusOK, pixelInfoResponse{Current: &current, History: hist})
}

func (s *Server) handlePalette(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, palette.List())
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	pk := r.PathValue("public_key")
	if pk == "" {
		writeError(w, http.StatusBadRequest, "bad_public_key", "public key must not be empty")
		return
	}

	address, err := s.resolver.ResolveHomeserver(r.Context(), pk)
	if err != nil {
		logger.Warnw("homeserver resolution failed", logger.FieldUser, pk, logger.FieldError, err)
		writeError(w, http.StatusServiceUnavailable, "resolver_unreachable", "could not resolve homeserver")
		return
	}

	if err := s.store.UpsertUser(r.Context(), pk, address); err != nil {
		logger.Errorw("upsert user failed", logger.FieldUser, pk, logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to register user")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type creditsResponse struct {
	Credits            int   `json:"credits"`
	MaxCredits         int   `json:"max_credits"`
	NextCreditInSeconds *int64 `json:"next_credit_in_seconds"`
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	pk := r.PathValue("public_key")
	if pk == "" {
		writeError(w, http.StatusBadRequest, "bad_public_key", "public key must not be empty")
		return
	}

	history, err := s.store.RecentEvents(r.Context(), pk, s.creditParams.MaxCredits)
	if err != nil {
		logger.Errorw("recent events failed", logger.FieldUser, pk, logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to read credit history")
		return
	}

	available, wait, hasNext := credit.Now(s.creditParams, history, s.nowMicros())
	resp := creditsResponse{Credits: available, MaxCredits: s.creditParams.MaxCredits}
	if hasNext {
		resp.NextCreditInSeconds = &wait
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
