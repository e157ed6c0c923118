package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zyetaone/z-interact-sub000/internal/feed"
	"github.com/zyetaone/z-interact-sub000/internal/ledger"
)

// heartbeatInterval keeps proxies from closing an idle stream.
const heartbeatInterval = 15 * time.Second

// handleEvents bridges a change-feed session onto an SSE response. One
// session per request; the session's cursor lives in this handler's frame
// and dies with it.
func handleEvents(store *ledger.Store, cfg feed.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var opts feed.Options
		opts.TableID = c.Query("table")
		if raw := c.Query("since"); raw != "" {
			since, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || since < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a non-negative epoch-millisecond integer"})
				return
			}
			opts.Since = since
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		ctx := c.Request.Context()
		session := feed.Subscribe(ctx, store, cfg, opts)

		heartbeat := time.NewTicker(heartbeatInterval)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				fmt.Fprint(c.Writer, ": keep-alive\n\n")
				c.Writer.Flush()
			case ev, ok := <-session.Events():
				if !ok {
					return
				}
				writeSSE(c.Writer, ev)
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes one feed event in SSE framing. The event name mirrors the
// envelope type so EventSource listeners can subscribe per type.
func writeSSE(w io.Writer, ev feed.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
}
