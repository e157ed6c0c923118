package gallery

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zyetaone/z-interact-sub000/internal/ledger"
	"github.com/zyetaone/z-interact-sub000/internal/models"
)

// Lifecycle errors returned by the Recorder.
var (
	ErrNotFound      = errors.New("gallery: image not found")
	ErrBadTransition = errors.New("gallery: image is not generating")
)

// Recorder writes the generation lifecycle into the ledger. The provider
// call itself happens elsewhere; the recorder only keeps the ledger honest
// about what the provider is doing.
type Recorder struct {
	store *ledger.Store
}

// NewRecorder returns a Recorder over the store.
func NewRecorder(store *ledger.Store) *Recorder {
	return &Recorder{store: store}
}

// Begin inserts a generating row for the table. Locked tables reject new
// generations; earlier attempts stay in the ledger and the gallery shows
// the latest row per table.
func (r *Recorder) Begin(ctx context.Context, tableID, personaID, prompt string) (*models.Image, error) {
	if tableID == "" {
		return nil, ErrMissingTable
	}

	locked, err := r.store.LockedFor(tableID)
	if err != nil {
		return nil, err
	}
	if locked != nil {
		return nil, fmt.Errorf("%w: %s", ErrTableLocked, tableID)
	}

	img := &models.Image{
		ID:        uuid.NewString(),
		TableID:   &tableID,
		PersonaID: personaID,
		Prompt:    prompt,
		Status:    models.StatusGenerating,
	}
	if err := r.store.Insert(img); err != nil {
		return nil, err
	}
	return img, nil
}

// Complete transitions a generating row to completed with the provider's
// result URL.
func (r *Recorder) Complete(ctx context.Context, id, resultURL string) (*models.Image, error) {
	if !validLocation(resultURL) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocation, resultURL)
	}
	return r.transition(id, map[string]any{
		"status": models.StatusCompleted,
		"url":    resultURL,
	})
}

// Fail transitions a generating row to failed, keeping the provider's error
// for the operator.
func (r *Recorder) Fail(ctx context.Context, id, message string) (*models.Image, error) {
	return r.transition(id, map[string]any{
		"status":        models.StatusFailed,
		"error_message": message,
	})
}

func (r *Recorder) transition(id string, patch map[string]any) (*models.Image, error) {
	var result *models.Image
	err := r.store.Transaction(func(tx *ledger.Store) error {
		img, err := tx.Get(id)
		if err != nil {
			return err
		}
		if img == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if img.Status != models.StatusGenerating {
			return fmt.Errorf("%w: %s is %s", ErrBadTransition, id, img.Status)
		}
		updated, err := tx.UpdateByID(id, patch)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
