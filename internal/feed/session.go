package feed

import (
	"context"
	"time"

	"github.com/zyetaone/z-interact-sub000/internal/models"
)

// Querier is the read path a session polls. It is the only thing sessions
// share; cursors live in the session itself.
type Querier interface {
	SelectSince(since int64, tableID string, limit int) ([]models.Image, error)
	SelectAll(tableID string) ([]models.Image, error)
}

// Config tunes a session. Zero values fall back to the defaults below.
type Config struct {
	PollInterval   time.Duration // cadence of the change-feed poll
	Lifetime       time.Duration // hard cap on session length
	RetryBudget    int           // consecutive query failures tolerated
	BatchLimit     int           // max rows per poll
	ExpectedTables []string      // scope keys that must lock for completion
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.Lifetime <= 0 {
		c.Lifetime = 5 * time.Minute
	}
	if c.RetryBudget <= 0 {
		c.RetryBudget = 3
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 100
	}
}

// Options are the per-subscription parameters a client supplies.
type Options struct {
	// Since resumes an earlier subscription from its cursor. Zero requests
	// a full initial sync instead.
	Since int64
	// TableID restricts the feed to one table. Empty means all.
	TableID string
}

// Session is one client's subscription. Exactly one goroutine runs the
// loop; Events is closed when the session ends for any reason.
type Session struct {
	q      Querier
	cfg    Config
	opts   Options
	events chan Event
}

// Subscribe starts a session and returns it. The session stops when ctx is
// cancelled, when its lifetime elapses, or when its retry budget is
// exhausted, always closing the event channel afterwards.
func Subscribe(ctx context.Context, q Querier, cfg Config, opts Options) *Session {
	cfg.applyDefaults()
	s := &Session{
		q:      q,
		cfg:    cfg,
		opts:   opts,
		events: make(chan Event, 16),
	}
	go s.run(ctx)
	return s
}

// Events returns the session's event stream.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) run(ctx context.Context) {
	defer close(s.events)

	deadline := time.NewTimer(s.cfg.Lifetime)
	defer deadline.Stop()

	ready := make(map[string]bool, len(s.cfg.ExpectedTables))
	for _, id := range s.cfg.ExpectedTables {
		ready[id] = false
	}

	// STARTING: load the full visible set. It seeds completion detection in
	// every case, and doubles as the initial sync snapshot when the client
	// did not bring a cursor.
	all, err := s.q.SelectAll(s.opts.TableID)
	if err != nil {
		s.emit(ctx, newEvent(EventError, ErrorData{Message: err.Error()}))
		return
	}
	reduceReady(ready, all)

	cursor := s.opts.Since
	if cursor == 0 {
		cursor = maxUpdatedAt(all, 0)
		if !s.emit(ctx, newEvent(EventSync, UpdateData{Images: all})) {
			s.end(ReasonCancelled)
			return
		}
	}

	// Completion is evaluated over the full visible set, so a session
	// resuming into an already-complete gallery announces it immediately
	// instead of waiting for a write that will never come.
	announced := false
	if allReady(ready) {
		if !s.emit(ctx, newEvent(EventComplete, CompleteData{Ready: copyReady(ready)})) {
			s.end(ReasonCancelled)
			return
		}
		announced = true
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	retries := 0
	for {
		select {
		case <-ctx.Done():
			s.end(ReasonCancelled)
			return
		case <-deadline.C:
			s.emit(ctx, newEvent(EventEnd, EndData{Reason: ReasonTimeout}))
			return
		case <-ticker.C:
		}

		// Drain until a poll comes back short, so a burst larger than one
		// batch does not take several ticks to deliver.
		for {
			if ctx.Err() != nil {
				s.end(ReasonCancelled)
				return
			}

			batch, err := s.q.SelectSince(cursor, s.opts.TableID, s.cfg.BatchLimit)
			if err != nil {
				retries++
				if retries > s.cfg.RetryBudget {
					s.emit(ctx, newEvent(EventError, ErrorData{Message: err.Error()}))
					return
				}
				// Retry on the next tick with the same cursor: nothing was
				// delivered, nothing is lost.
				break
			}
			retries = 0

			if len(batch) == 0 {
				break
			}

			if !s.emit(ctx, newEvent(EventUpdate, UpdateData{Images: batch})) {
				s.end(ReasonCancelled)
				return
			}
			cursor = maxUpdatedAt(batch, cursor)
			reduceReady(ready, batch)
			if !announced && allReady(ready) {
				if !s.emit(ctx, newEvent(EventComplete, CompleteData{Ready: copyReady(ready)})) {
					s.end(ReasonCancelled)
					return
				}
				announced = true
			}

			if len(batch) < s.cfg.BatchLimit {
				break
			}
		}
	}
}

// emit delivers ev unless the subscriber has gone away.
func (s *Session) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// end sends the final end event without blocking; after cancellation the
// consumer may no longer be reading.
func (s *Session) end(reason string) {
	select {
	case s.events <- newEvent(EventEnd, EndData{Reason: reason}):
	default:
	}
}

// maxUpdatedAt returns the highest updated_at over the batch, never less
// than floor. The cursor must advance by the max over the whole batch, not
// the last element, so millisecond ties cannot regress it.
func maxUpdatedAt(images []models.Image, floor int64) int64 {
	max := floor
	for _, img := range images {
		if img.UpdatedAt > max {
			max = img.UpdatedAt
		}
	}
	return max
}

// reduceReady folds locked rows into the readiness map. Only tables the map
// already knows about count; rows for unexpected tables are ignored.
func reduceReady(ready map[string]bool, images []models.Image) {
	for _, img := range images {
		if img.Status != models.StatusLocked || img.TableID == nil {
			continue
		}
		if _, ok := ready[*img.TableID]; ok {
			ready[*img.TableID] = true
		}
	}
}

// copyReady snapshots the readiness map for an event payload, since the
// loop keeps mutating the original.
func copyReady(ready map[string]bool) map[string]bool {
	out := make(map[string]bool, len(ready))
	for k, v := range ready {
		out[k] = v
	}
	return out
}

// allReady reports whether every expected table has locked. An empty
// expectation never completes.
func allReady(ready map[string]bool) bool {
	if len(ready) == 0 {
		return false
	}
	for _, ok := range ready {
		if !ok {
			return false
		}
	}
	return true
}
