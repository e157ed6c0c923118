// Package gallery holds the write path of the image ledger: the lock
// command participants trigger when a table finalizes its image, and the
// generation lifecycle transitions around it.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/google/uuid"

	"github.com/zyetaone/z-interact-sub000/internal/ledger"
	"github.com/zyetaone/z-interact-sub000/internal/models"
)

// Validation errors, rejected before anything reaches the ledger.
var (
	ErrMissingTable    = errors.New("gallery: table id is required")
	ErrInvalidLocation = errors.New("gallery: image url must be an absolute http(s) url")
)

// ErrTableLocked rejects writes against a table whose submission is final.
var ErrTableLocked = errors.New("gallery: table is locked")

// Promoter copies an externally hosted artifact into durable storage and
// returns the durable reference. Promotion is best-effort; the lock never
// waits on storage it cannot have.
type Promoter interface {
	Promote(ctx context.Context, externalRef string) (string, error)
}

// LockRequest is the write-boundary payload of the lock command.
type LockRequest struct {
	TableID   string `json:"tableId"`
	PersonaID string `json:"personaId"`
	URL       string `json:"url"`
	Prompt    string `json:"prompt"`
}

// Locker implements the idempotent lock command.
type Locker struct {
	store    *ledger.Store
	promoter Promoter
	logger   *log.Logger
}

// NewLocker returns a Locker. promoter may be nil to skip promotion;
// logger may be nil to use the standard logger.
func NewLocker(store *ledger.Store, promoter Promoter, logger *log.Logger) *Locker {
	if logger == nil {
		logger = log.Default()
	}
	return &Locker{store: store, promoter: promoter, logger: logger}
}

// Lock transitions a table into its terminal locked state and returns the
// locked row. Calling it again for the same table returns the existing row
// unchanged, whatever URL the retry carried.
func (l *Locker) Lock(ctx context.Context, req LockRequest) (*models.Image, error) {
	if req.TableID == "" {
		return nil, ErrMissingTable
	}
	if !validLocation(req.URL) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocation, req.URL)
	}

	// Promotion happens outside the transaction: it is network I/O against
	// the provider's hosting and must not hold a write lock. Failure keeps
	// the transient URL.
	finalURL := req.URL
	if l.promoter != nil {
		promoted, err := l.promoter.Promote(ctx, req.URL)
		if err != nil {
			l.logger.Printf("gallery: promote %s for table %s: %v", req.URL, req.TableID, err)
		} else {
			finalURL = promoted
		}
	}

	var result *models.Image
	err := l.store.Transaction(func(tx *ledger.Store) error {
		existing, err := tx.LockedFor(req.TableID)
		if err != nil {
			return err
		}
		if existing != nil {
			result = existing
			return nil
		}

		latest, err := tx.LatestFor(req.TableID)
		if err != nil {
			return err
		}
		if latest != nil {
			updated, err := tx.UpdateByID(latest.ID, map[string]any{
				"persona_id":    req.PersonaID,
				"url":           finalURL,
				"prompt":        req.Prompt,
				"status":        models.StatusLocked,
				"locked_table":  req.TableID,
				"error_message": "",
			})
			if err != nil {
				return err
			}
			result = updated
			return nil
		}

		tableID := req.TableID
		img := &models.Image{
			ID:          uuid.NewString(),
			TableID:     &tableID,
			PersonaID:   req.PersonaID,
			URL:         finalURL,
			Prompt:      req.Prompt,
			Status:      models.StatusLocked,
			LockedTable: &tableID,
		}
		if err := tx.Insert(img); err != nil {
			return err
		}
		result = img
		return nil
	})
	if err != nil {
		// A concurrent lock may have won the race: the unique guard on
		// locked_table rejects the loser's write. Every caller still gets
		// the winner's record.
		if existing, lerr := l.store.LockedFor(req.TableID); lerr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return result, nil
}

// validLocation accepts absolute http(s) URLs and references already
// promoted into local artifact storage.
func validLocation(ref string) bool {
	if ref == "" {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https":
		return u.Host != ""
	case "":
		// Rooted path into our own artifact store.
		return len(ref) > 1 && ref[0] == '/'
	default:
		return false
	}
}
