// Package client is the consumer side of the change feed: a reactive
// store that keeps a local snapshot of the image ledger converged with the
// server, over the event stream when it can and plain polling when it
// cannot.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zyetaone/z-interact-sub000/internal/models"
)

// Modes the store can be in, exposed for observability.
const (
	ModeIdle       = "idle"
	ModeSubscribed = "subscribed"
	ModePolling    = "polling"
)

// Config tunes the store. Zero values fall back to the defaults below.
type Config struct {
	// TableID restricts the store to one table. Empty means all.
	TableID string
	// PollInterval is the fallback polling cadence.
	PollInterval time.Duration
	// ResubscribeDelay is the pause before reconnecting after a timeout end.
	ResubscribeDelay time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.ResubscribeDelay <= 0 {
		c.ResubscribeDelay = 250 * time.Millisecond
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
}

// Store holds the local snapshot. All exported methods are safe for
// concurrent use; derived queries never mutate state.
type Store struct {
	base string
	cfg  Config

	mu          sync.RWMutex
	images      map[string]models.Image
	ready       map[string]bool
	cursor      int64
	initialized bool
	mode        string
	cancel      context.CancelFunc
	done        chan struct{}
}

// New returns a Store pointed at a Z-Interact server base URL.
func New(baseURL string, cfg Config) *Store {
	cfg.applyDefaults()
	return &Store{
		base:   strings.TrimRight(baseURL, "/"),
		cfg:    cfg,
		images: make(map[string]models.Image),
		ready:  make(map[string]bool),
		mode:   ModeIdle,
	}
}

// Initialize performs the one-time full load. Calling it again is a no-op.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.RLock()
	already := s.initialized
	s.mu.RUnlock()
	if already {
		return nil
	}

	images, err := s.fetchAll(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	s.replaceLocked(images)
	s.initialized = true
	return nil
}

// Subscribe opens the event stream in the background. The stream replaces
// the snapshot on sync, merges deltas on update, reconnects on timeout
// ends, and degrades to interval polling on anything else. Calling
// Subscribe while already subscribed is a no-op.
func (s *Store) Subscribe(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mode = ModeSubscribed
	go s.run(ctx, s.done)
}

// Cancel tears down the active subscription and waits for it to stop. Safe
// to call any number of times.
func (s *Store) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	s.mu.Lock()
	s.mode = ModeIdle
	s.mu.Unlock()
}

// Mode reports how the store is currently converging.
func (s *Store) Mode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// run is the subscription loop: stream until it ends, then either
// reconnect (timeout) or fall back to polling (everything else).
func (s *Store) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for ctx.Err() == nil {
		err := s.stream(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case err == errEndTimeout:
			// Expected: the server caps session length. Reconnect with the
			// cursor so catch-up is incremental.
			select {
			case <-time.After(s.cfg.ResubscribeDelay):
			case <-ctx.Done():
				return
			}
		default:
			s.setMode(ModePolling)
			s.pollLoop(ctx)
			return
		}
	}
}

// pollLoop is the degraded path: periodic full refreshes until cancelled.
func (s *Store) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			images, err := s.fetchAll(ctx)
			if err != nil {
				continue
			}
			s.mu.Lock()
			s.replaceLocked(images)
			s.mu.Unlock()
		}
	}
}

// fetchAll loads the full list through the plain REST endpoint.
func (s *Store) fetchAll(ctx context.Context) ([]models.Image, error) {
	u := s.base + "/api/images"
	if s.cfg.TableID != "" {
		u += "?table=" + url.QueryEscape(s.cfg.TableID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("client: request: %w", err)
	}
	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: fetch images: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client: fetch images: status %d", resp.StatusCode)
	}
	var images []models.Image
	if err := decodeJSON(resp.Body, &images); err != nil {
		return nil, fmt.Errorf("client: decode images: %w", err)
	}
	return images, nil
}

// eventsURL builds the subscription URL, resuming from the cursor when the
// store has one.
func (s *Store) eventsURL() string {
	q := url.Values{}
	if s.cfg.TableID != "" {
		q.Set("table", s.cfg.TableID)
	}
	s.mu.RLock()
	cursor := s.cursor
	s.mu.RUnlock()
	if cursor > 0 {
		q.Set("since", strconv.FormatInt(cursor, 10))
	}
	u := s.base + "/api/events"
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

func (s *Store) setMode(mode string) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

// replaceLocked swaps in a full snapshot. Callers hold the write lock.
func (s *Store) replaceLocked(images []models.Image) {
	s.images = make(map[string]models.Image, len(images))
	for _, img := range images {
		s.images[img.ID] = img
		if img.UpdatedAt > s.cursor {
			s.cursor = img.UpdatedAt
		}
	}
}

// mergeLocked folds a delta into the snapshot: last write wins per id, no
// field-level merging. Callers hold the write lock.
func (s *Store) mergeLocked(images []models.Image) {
	for _, img := range images {
		s.images[img.ID] = img
		if img.UpdatedAt > s.cursor {
			s.cursor = img.UpdatedAt
		}
	}
}

// Snapshot returns the current records, oldest first.
func (s *Store) Snapshot() []models.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Image, 0, len(s.images))
	for _, img := range s.images {
		out = append(out, img)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// LockedFor returns the locked record for a table, if any.
func (s *Store) LockedFor(tableID string) (models.Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, img := range s.images {
		if img.Status == models.StatusLocked && img.Table() == tableID {
			return img, true
		}
	}
	return models.Image{}, false
}

// IsLocked reports whether a table has finalized its image.
func (s *Store) IsLocked(tableID string) bool {
	_, ok := s.LockedFor(tableID)
	return ok
}

// TableCount returns how many distinct tables have any record.
func (s *Store) TableCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	for _, img := range s.images {
		if t := img.Table(); t != "" {
			seen[t] = true
		}
	}
	return len(seen)
}

// AllLocked reports whether every expected table has a locked record. An
// empty expectation is never complete.
func (s *Store) AllLocked(expected []string) bool {
	if len(expected) == 0 {
		return false
	}
	for _, id := range expected {
		if !s.IsLocked(id) {
			return false
		}
	}
	return true
}

// Readiness returns the most recent readiness map surfaced by a complete
// event, or nil when none has arrived.
func (s *Store) Readiness() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ready == nil || len(s.ready) == 0 {
		return nil
	}
	out := make(map[string]bool, len(s.ready))
	for k, v := range s.ready {
		out[k] = v
	}
	return out
}

// Cursor returns the max updated_at the store has merged.
func (s *Store) Cursor() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}
