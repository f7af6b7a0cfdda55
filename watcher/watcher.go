// Package watcher implements the periodic ingestion loop: pulling deltas
// from each registered user's homeserver and feeding them through the
// validator, credit engine, and canvas engine before committing to the
// store and broadcasting acceptances.
package watcher

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pubky-canvas/indexer/broadcast"
	"github.com/pubky-canvas/indexer/canvas"
	"github.com/pubky-canvas/indexer/credit"
	"github.com/pubky-canvas/indexer/errors"
	"github.com/pubky-canvas/indexer/homeserver"
	"github.com/pubky-canvas/indexer/idcodec"
	"github.com/pubky-canvas/indexer/logger"
	"github.com/pubky-canvas/indexer/store"
	"github.com/pubky-canvas/indexer/validator"
)

// pixelPath matches /pub/pubky-canva/pixels/<id>, extracting the id.
var pixelPath = regexp.MustCompile(`^/pub/pubky-canva/pixels/([0-9A-Z]+)$`)

// Permanent-rejection sentinel errors. Each carries a machine-readable hint
// so logging/metrics code can classify a rejection via errors.Is instead of
// comparing strings.
var (
	ErrBadID              = errors.WithHint(errors.New("malformed placement id"), "bad_id")
	ErrBadPayload         = errors.WithHint(errors.New("malformed placement payload"), "bad_payload")
	ErrOutOfBounds        = errors.WithHint(errors.New("coordinates outside canvas bounds"), "out_of_bounds")
	ErrBadColor           = errors.WithHint(errors.New("color outside the palette"), "bad_color")
	ErrFuturePlacement    = errors.WithHint(errors.New("placement timestamp too far in the future"), "future")
	ErrInsufficientCredit = errors.WithHint(errors.New("insufficient placement credit"), "insufficient_credit")
)

// rejectionReason classifies a permanent-rejection sentinel error into its
// machine-readable reason string via errors.Is, falling back to "unknown"
// for anything that isn't one of the sentinels above.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrBadID):
		return "bad_id"
	case errors.Is(err, ErrBadPayload):
		return "bad_payload"
	case errors.Is(err, ErrOutOfBounds):
		return "out_of_bounds"
	case errors.Is(err, ErrBadColor):
		return "bad_color"
	case errors.Is(err, ErrFuturePlacement):
		return "future"
	case errors.Is(err, ErrInsufficientCredit):
		return "insufficient_credit"
	default:
		return "unknown"
	}
}

// validatorRejectionError maps a validator.Result to its sentinel error.
func validatorRejectionError(r validator.Result) error {
	switch r {
	case validator.OutOfBounds:
		return ErrOutOfBounds
	case validator.BadColor:
		return ErrBadColor
	case validator.Future:
		return ErrFuturePlacement
	default:
		return ErrBadPayload
	}
}

// Config bundles the tunables read from canvas.*/watcher.* configuration.
type Config struct {
	PollInterval      time.Duration
	EventsLimit       int
	CreditParams      credit.Params
	StoreWriteTimeout time.Duration
}

// Watcher drives the single logical ingestion loop.
type Watcher struct {
	store       *store.Store
	client      homeserver.Client
	broadcaster *broadcast.Broadcaster

	mu     sync.RWMutex
	cfg    Config
	ticker *time.Ticker

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a Watcher. Call Run to start the periodic loop.
func New(s *store.Store, client homeserver.Client, b *broadcast.Broadcaster, cfg Config) *Watcher {
	return &Watcher{store: s, client: client, broadcaster: b, cfg: cfg}
}

// config returns a snapshot of the current tunables, safe to read
// concurrently with SetConfig.
func (w *Watcher) config() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// SetConfig updates the watcher's tunables for subsequent ticks. Used by the
// config hot-reload path for watcher.* keys. The poll interval takes effect
// immediately via the running ticker; events_limit and credit params take
// effect starting with the next tick.
func (w *Watcher) SetConfig(cfg Config) {
	w.mu.Lock()
	prevInterval := w.cfg.PollInterval
	w.cfg = cfg
	ticker := w.ticker
	w.mu.Unlock()

	if ticker != nil && cfg.PollInterval > 0 && cfg.PollInterval != prevInterval {
		ticker.Reset(cfg.PollInterval)
	}
}

// Run starts the ticker-driven loop in the background. It returns
// immediately; call Stop to request a graceful shutdown.
func (w *Watcher) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop cancels the loop and waits for the in-flight tick to finish
// committing or rolling back.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	w.mu.Lock()
	w.ticker = time.NewTicker(w.cfg.PollInterval)
	ticker := w.ticker
	w.mu.Unlock()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				logger.Errorw("watcher tick failed", logger.FieldError, err)
			}
		}
	}
}

// tickStats summarizes one tick for logging.
type tickStats struct {
	usersProcessed int
	accepted       int
	rejected       int
	duplicate      int
	resized        bool
}

// Tick runs exactly one pass over all registered users: list, validate,
// rate-limit, materialize, and commit, followed by a single end-of-tick
// resize check and broadcast of everything accepted this tick.
func (w *Watcher) Tick(ctx context.Context) error {
	users, err := w.store.ListUsers(ctx)
	if err != nil {
		return errors.Wrap(err, "list users for tick")
	}

	cfg := w.config()

	var stats tickStats
	var acceptedMsgs []broadcast.Message

	for _, u := range users {
		msgs, err := w.processUser(ctx, u, cfg)
		if err != nil {
			logger.Warnw("skipping user this tick", logger.FieldUser, u.PublicKey, logger.FieldError, err)
			continue
		}
		stats.usersProcessed++
		stats.accepted += len(msgs)
		acceptedMsgs = append(acceptedMsgs, msgs...)
	}

	if err := w.evaluateResize(ctx, &stats, cfg); err != nil {
		logger.Errorw("resize evaluation failed", logger.FieldError, err)
	}

	for _, msg := range acceptedMsgs {
		w.broadcaster.Publish(msg)
	}

	logger.Infow("watcher tick complete",
		"users_processed", stats.usersProcessed,
		"accepted", stats.accepted,
		"resized", stats.resized,
	)

	return nil
}

// storeCtx bounds a single store write with the configured store-write
// timeout, falling back to the parent context when unset.
func storeCtx(ctx context.Context, cfg Config) (context.Context, context.CancelFunc) {
	if cfg.StoreWriteTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, cfg.StoreWriteTimeout)
}

// processUser lists and processes one user's page of events, returning the
// broadcast messages for every event accepted this tick. It returns an
// error only for failures that should cause the whole user to be skipped
// this tick (network/stream errors); per-record failures are handled
// internally per the cursor-advance rules in the ingestion contract.
func (w *Watcher) processUser(ctx context.Context, u store.User, cfg Config) ([]broadcast.Message, error) {
	records, _, err := w.client.ListEvents(ctx, u.Homeserver, u.Cursor, cfg.EventsLimit)
	if err != nil {
		return nil, errors.Wrapf(err, "list events for %s", u.PublicKey)
	}

	var msgs []broadcast.Message

	for _, rec := range records {
		accepted, committed, err := w.processRecord(ctx, u, rec, cfg)
		if err != nil {
			// Object-fetch or store failure: stop processing this user's
			// remaining records this tick. The cursor has not advanced
			// past this record, so it is retried next tick.
			logger.Warnw("aborting user batch this tick", logger.FieldUser, u.PublicKey, logger.FieldError, err)
			break
		}
		if !committed {
			continue
		}
		if accepted != nil {
			msgs = append(msgs, *accepted)
		}
	}

	return msgs, nil
}

// processRecord handles exactly one event record. It returns:
//   - accepted: a broadcast message if the event was newly accepted, else nil
//   - committed: whether the record's cursor position was persisted (true
//     for permanent accept/reject/duplicate outcomes; false for skipped
//     non-PUT or non-pixel records, whose cursor is not persisted, and
//     whenever err is non-nil)
//   - err: non-nil only for transient failures (object fetch, store write)
//     that should abort the remainder of this user's batch this tick
func (w *Watcher) processRecord(ctx context.Context, u store.User, rec homeserver.EventRecord, cfg Config) (*broadcast.Message, bool, error) {
	if !strings.EqualFold(rec.Method, "PUT") {
		return nil, false, nil
	}

	matches := pixelPath.FindStringSubmatch(rec.Path)
	if matches == nil {
		return nil, false, nil
	}
	rawID := matches[1]

	placedAt, decodeErr := idcodec.Decode(rawID)
	if decodeErr != nil {
		// Malformed id: permanent reject, advance cursor past it.
		if err := w.rejectPermanent(ctx, u, rec, cfg, ErrBadID); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}

	body, fetchErr := w.client.FetchObject(ctx, u.Homeserver, rec.Path)
	if fetchErr != nil {
		return nil, false, errors.Wrapf(fetchErr, "fetch object %s", rec.Path)
	}

	x, y, color, ok := validator.ParsePayload(body)
	if !ok {
		if err := w.rejectPermanent(ctx, u, rec, cfg, ErrBadPayload); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}

	wctx, wcancel := storeCtx(ctx, cfg)
	meta, err := w.store.GetMeta(wctx)
	wcancel()
	if err != nil {
		return nil, false, errors.Wrap(err, "read canvas meta")
	}

	result := validator.Validate(validator.Candidate{X: x, Y: y, Color: color, PlacedAt: int64(placedAt)}, meta.Size, nowMicros())
	if result != validator.Valid {
		if err := w.rejectPermanent(ctx, u, rec, cfg, validatorRejectionError(result)); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}

	wctx, wcancel = storeCtx(ctx, cfg)
	history, err := w.store.RecentEvents(wctx, u.PublicKey, cfg.CreditParams.MaxCredits+1)
	wcancel()
	if err != nil {
		return nil, false, errors.Wrap(err, "fetch recent events for credit check")
	}

	if !credit.Accept(cfg.CreditParams, history, int64(placedAt)) {
		if err := w.rejectPermanent(ctx, u, rec, cfg, ErrInsufficientCredit); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}

	wctx, wcancel = storeCtx(ctx, cfg)
	existing, err := w.store.GetCell(wctx, x, y)
	wcancel()
	if err != nil {
		return nil, false, errors.Wrap(err, "read existing cell")
	}

	delta := canvas.Delta(existing, u.PublicKey, color, int64(placedAt), x, y)
	ev := store.PixelEvent{ID: rawID, UserPK: u.PublicKey, X: x, Y: y, Color: color, PlacedAt: int64(placedAt)}

	wctx, wcancel = storeCtx(ctx, cfg)
	outcome, err := w.store.AcceptEvent(wctx, ev, delta, rec.Cursor)
	wcancel()
	if err != nil {
		return nil, false, errors.Wrap(err, "accept event")
	}

	if outcome == store.Duplicate {
		return nil, true, nil
	}

	msg := broadcast.Message{
		Kind:     broadcast.KindPixel,
		X:        x,
		Y:        y,
		Color:    color,
		UserPK:   u.PublicKey,
		PlacedAt: int64(placedAt),
	}
	return &msg, true, nil
}

// rejectPermanent persists the cursor advance for a permanently rejected
// record (malformed payload, rule violation, insufficient credit); the
// record itself is never reconsidered. reason is one of the sentinel errors
// declared above; rejectionReason extracts its machine-readable hint via
// errors.Is for the log line. A failure to persist the cursor is returned so
// the caller aborts the user's batch for this tick.
func (w *Watcher) rejectPermanent(ctx context.Context, u store.User, rec homeserver.EventRecord, cfg Config, reason error) error {
	logger.Infow("permanent ingestion reject",
		logger.FieldUser, u.PublicKey,
		logger.FieldReason, rejectionReason(reason),
		"path", rec.Path,
	)

	wctx, wcancel := storeCtx(ctx, cfg)
	defer wcancel()
	if err := w.store.SetCursor(wctx, u.PublicKey, rec.Cursor); err != nil {
		return errors.Wrap(err, "persist cursor after rejection")
	}
	return nil
}

func (w *Watcher) evaluateResize(ctx context.Context, stats *tickStats, cfg Config) error {
	wctx, wcancel := storeCtx(ctx, cfg)
	meta, err := w.store.GetMeta(wctx)
	wcancel()
	if err != nil {
		return errors.Wrap(err, "read canvas meta for resize check")
	}
	if !canvas.ShouldResize(meta) {
		return nil
	}

	newSize := meta.Size * 2

	wctx, wcancel = storeCtx(ctx, cfg)
	err = w.store.Resize(wctx, newSize)
	wcancel()
	if err != nil {
		return errors.Wrap(err, "resize canvas")
	}

	stats.resized = true
	w.broadcaster.Publish(broadcast.Message{Kind: broadcast.KindResize, OldSize: meta.Size, NewSize: newSize})
	logger.Infow("canvas resized", "old_size", meta.Size, "new_size", newSize)

	return nil
}

func nowMicros() int64 {
	return time.Now().UnixMicro()
}
