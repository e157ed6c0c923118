package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zyetaone/z-interact-sub000/internal/gallery"
	"github.com/zyetaone/z-interact-sub000/internal/ledger"
)

type generateRequest struct {
	TableID   string `json:"tableId" binding:"required"`
	PersonaID string `json:"personaId"`
	Prompt    string `json:"prompt"`
}

type resultRequest struct {
	URL string `json:"url" binding:"required"`
}

type failRequest struct {
	Error string `json:"error"`
}

func handleListImages(store *ledger.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		images, err := store.SelectAll(c.Query("table"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, images)
	}
}

func handleGenerate(recorder *gallery.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req generateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		img, err := recorder.Begin(c.Request.Context(), req.TableID, req.PersonaID, req.Prompt)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, img)
	}
}

func handleComplete(recorder *gallery.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resultRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		img, err := recorder.Complete(c.Request.Context(), c.Param("id"), req.URL)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, img)
	}
}

func handleFail(recorder *gallery.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req failRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		img, err := recorder.Fail(c.Request.Context(), c.Param("id"), req.Error)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, img)
	}
}

func handleLock(locker *gallery.Locker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req gallery.LockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		img, err := locker.Lock(c.Request.Context(), req)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, img)
	}
}

func handleClear(store *ledger.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		deleted, err := store.DeleteAll(c.Query("table"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": deleted})
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gallery.ErrMissingTable), errors.Is(err, gallery.ErrInvalidLocation):
		return http.StatusBadRequest
	case errors.Is(err, gallery.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gallery.ErrTableLocked), errors.Is(err, gallery.ErrBadTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
