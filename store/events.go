package store

import (
	"context"
	"database/sql"
	"strings"

	ourerrors "github.com/pubky-canvas/indexer/errors"
)

// RecentEvents returns up to limit of a user's most recent accepted
// placements, ordered newest-first. limit = max_credits + 1 suffices for
// the credit engine's needs.
func (s *Store) RecentEvents(ctx context.Context, pk string, limit int) ([]PixelEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_pk, x, y, color, placed_at
		FROM pixel_events
		WHERE user_pk = ?
		ORDER BY placed_at DESC
		LIMIT ?
	`, pk, limit)
	if err != nil {
		return nil, ourerrors.Wrapf(err, "recent events for %s", pk)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetCell returns the current materialized cell at (x, y), or nil if none
// exists yet.
func (s *Store) GetCell(ctx context.Context, x, y int) (*CanvasCell, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT x, y, color, last_user_pk, last_placed_at, first_user_pk, overwritten_by_other_count
		FROM canvas_cells WHERE x = ? AND y = ?
	`, x, y)
	var c CanvasCell
	err := row.Scan(&c.X, &c.Y, &c.Color, &c.LastUserPK, &c.LastPlacedAt, &c.FirstUserPK, &c.OverwrittenByOtherCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ourerrors.Wrapf(err, "get cell (%d,%d)", x, y)
	}
	return &c, nil
}

// GetMeta returns the canvas-wide singleton metadata row.
func (s *Store) GetMeta(ctx context.Context) (CanvasMeta, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT size, total_pixels, filled_count, overwritten_distinct_count FROM canvas_meta WHERE id = 1
	`)
	var m CanvasMeta
	if err := row.Scan(&m.Size, &m.TotalPixels, &m.FilledCount, &m.OverwrittenDistinctCount); err != nil {
		return CanvasMeta{}, ourerrors.Wrap(err, "get canvas meta")
	}
	return m, nil
}

// InitMeta sets the initial canvas size if no metadata row exists yet. It is
// a no-op if canvas_meta already has a row.
func (s *Store) InitMeta(ctx context.Context, initialSize int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO canvas_meta (id, size, total_pixels, filled_count, overwritten_distinct_count)
		VALUES (1, ?, ?, 0, 0)
		ON CONFLICT(id) DO NOTHING
	`, initialSize, initialSize*initialSize)
	if err != nil {
		return ourerrors.Wrap(err, "init canvas meta")
	}
	return nil
}

// AcceptEvent atomically inserts a pixel event, applies its canvas delta (if
// the event is new), and advances the user's cursor. A primary-key
// collision on the event id yields Duplicate; the cursor still advances
// (the record has been fully considered) but the canvas is untouched.
func (s *Store) AcceptEvent(ctx context.Context, ev PixelEvent, delta CanvasDelta, newCursor string) (AcceptOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Duplicate, ourerrors.Wrap(err, "begin accept_event tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pixel_events (id, user_pk, x, y, color, placed_at) VALUES (?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.UserPK, ev.X, ev.Y, ev.Color, ev.PlacedAt)

	outcome := Accepted
	if err != nil {
		if isUniqueViolation(err) {
			outcome = Duplicate
		} else {
			return Duplicate, ourerrors.Wrapf(err, "insert pixel event %s", ev.ID)
		}
	}

	if outcome == Accepted && delta.Materialize {
		if err := applyDelta(ctx, tx, delta); err != nil {
			return Duplicate, err
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET cursor = ? WHERE public_key = ?`, newCursor, ev.UserPK); err != nil {
		return Duplicate, ourerrors.Wrapf(err, "advance cursor for %s", ev.UserPK)
	}

	if err := tx.Commit(); err != nil {
		return Duplicate, ourerrors.Wrap(err, "commit accept_event")
	}

	return outcome, nil
}

func applyDelta(ctx context.Context, tx *sql.Tx, d CanvasDelta) error {
	if !d.CellExisted {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO canvas_cells (x, y, color, last_user_pk, last_placed_at, first_user_pk, overwritten_by_other_count)
			VALUES (?, ?, ?, ?, ?, ?, 0)
		`, d.X, d.Y, d.Color, d.UserPK, d.PlacedAt, d.UserPK); err != nil {
			return ourerrors.Wrapf(err, "insert cell (%d,%d)", d.X, d.Y)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE canvas_meta SET filled_count = filled_count + 1 WHERE id = 1
		`); err != nil {
			return ourerrors.Wrap(err, "increment filled_count")
		}
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE canvas_cells
		SET color = ?, last_user_pk = ?, last_placed_at = ?, overwritten_by_other_count = ?
		WHERE x = ? AND y = ?
	`, d.Color, d.UserPK, d.PlacedAt, d.OverwrittenByOtherCount, d.X, d.Y); err != nil {
		return ourerrors.Wrapf(err, "update cell (%d,%d)", d.X, d.Y)
	}

	if d.IncrementOverwrittenDistinct {
		if _, err := tx.ExecContext(ctx, `
			UPDATE canvas_meta SET overwritten_distinct_count = overwritten_distinct_count + 1 WHERE id = 1
		`); err != nil {
			return ourerrors.Wrap(err, "increment overwritten_distinct_count")
		}
	}

	return nil
}

// Resize atomically doubles (or otherwise changes) the canvas size and
// recomputes filled/overwritten counters over the surviving cells.
func (s *Store) Resize(ctx context.Context, newSize int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ourerrors.Wrap(err, "begin resize tx")
	}
	defer tx.Rollback()

	var filled, overwritten int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM canvas_cells`).Scan(&filled); err != nil {
		return ourerrors.Wrap(err, "count cells")
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM canvas_cells WHERE overwritten_by_other_count > 0`).Scan(&overwritten); err != nil {
		return ourerrors.Wrap(err, "count overwritten cells")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE canvas_meta SET size = ?, total_pixels = ?, filled_count = ?, overwritten_distinct_count = ? WHERE id = 1
	`, newSize, newSize*newSize, filled, overwritten); err != nil {
		return ourerrors.Wrap(err, "update canvas_meta on resize")
	}

	if err := tx.Commit(); err != nil {
		return ourerrors.Wrap(err, "commit resize")
	}
	return nil
}

// CanvasSnapshot returns the current size and all filled cells, read inside
// one transaction so the size and the cells come from the same moment.
func (s *Store) CanvasSnapshot(ctx context.Context) (int, []CanvasCell, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, ourerrors.Wrap(err, "begin canvas snapshot tx")
	}
	defer tx.Rollback()

	var size int
	if err := tx.QueryRowContext(ctx, `SELECT size FROM canvas_meta WHERE id = 1`).Scan(&size); err != nil {
		return 0, nil, ourerrors.Wrap(err, "get canvas meta")
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT x, y, color, last_user_pk, last_placed_at, first_user_pk, overwritten_by_other_count FROM canvas_cells
	`)
	if err != nil {
		return 0, nil, ourerrors.Wrap(err, "canvas snapshot")
	}
	defer rows.Close()

	var cells []CanvasCell
	for rows.Next() {
		var c CanvasCell
		if err := rows.Scan(&c.X, &c.Y, &c.Color, &c.LastUserPK, &c.LastPlacedAt, &c.FirstUserPK, &c.OverwrittenByOtherCount); err != nil {
			return 0, nil, ourerrors.Wrap(err, "scan cell")
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, ourerrors.Wrap(err, "iterate cells")
	}

	return size, cells, nil
}

// PixelInfo returns the current cell at (x, y) (nil if never painted) and
// its full placement history in ascending placed_at order.
func (s *Store) PixelInfo(ctx context.Context, x, y int) (*CanvasCell, []PixelEvent, error) {
	cell, err := s.GetCell(ctx, x, y)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_pk, x, y, color, placed_at FROM pixel_events
		WHERE x = ? AND y = ? ORDER BY placed_at ASC
	`, x, y)
	if err != nil {
		return nil, nil, ourerrors.Wrapf(err, "pixel history (%d,%d)", x, y)
	}
	defer rows.Close()

	history, err := scanEvents(rows)
	if err != nil {
		return nil, nil, err
	}

	return cell, history, nil
}

func scanEvents(rows *sql.Rows) ([]PixelEvent, error) {
	var events []PixelEvent
	for rows.Next() {
		var e PixelEvent
		if err := rows.Scan(&e.ID, &e.UserPK, &e.X, &e.Y, &e.Color, &e.PlacedAt); err != nil {
			return nil, ourerrors.Wrap(err, "scan pixel event")
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ourerrors.Wrap(err, "iterate pixel events")
	}
	return events, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
