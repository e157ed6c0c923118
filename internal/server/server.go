// Package server exposes the ledger over HTTP: REST endpoints for the
// write path, an SSE endpoint bridging change-feed sessions, and static
// serving of promoted artifacts.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zyetaone/z-interact-sub000/internal/feed"
	"github.com/zyetaone/z-interact-sub000/internal/gallery"
	"github.com/zyetaone/z-interact-sub000/internal/ledger"
)

// StartOpts holds configuration for the HTTP server.
type StartOpts struct {
	Store         *ledger.Store
	Locker        *gallery.Locker
	Recorder      *gallery.Recorder
	Feed          feed.Config
	ArtifactsDir  string // local directory of promoted files; empty disables serving
	ArtifactsBase string // URL prefix the directory is served under
	Port          int
	Out           io.Writer
}

// Start launches the HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Store == nil || opts.Locker == nil || opts.Recorder == nil {
		return fmt.Errorf("server: store, locker and recorder are required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(opts)

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Z-Interact listening at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// newRouter wires all routes onto a fresh engine.
func newRouter(opts StartOpts) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	if opts.ArtifactsDir != "" {
		base := opts.ArtifactsBase
		if base == "" {
			base = "/artifacts"
		}
		router.Static(base, opts.ArtifactsDir)
	}

	router.GET("/healthz", handleHealth)

	api := router.Group("/api")
	api.GET("/images", handleListImages(opts.Store))
	api.POST("/images/generate", handleGenerate(opts.Recorder))
	api.POST("/images/:id/complete", handleComplete(opts.Recorder))
	api.POST("/images/:id/fail", handleFail(opts.Recorder))
	api.POST("/images/lock", handleLock(opts.Locker))
	api.DELETE("/images", handleClear(opts.Store))
	api.GET("/events", handleEvents(opts.Store, opts.Feed))

	return router
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
