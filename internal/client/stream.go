package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zyetaone/z-interact-sub000/internal/feed"
)

// Terminal stream outcomes. Timeout is the only one worth reconnecting
// for; everything else degrades to polling.
var (
	errEndTimeout   = errors.New("client: stream ended: timeout")
	errEndCancelled = errors.New("client: stream ended: cancelled")
)

// envelope mirrors the feed event with the payload left raw until the type
// is known.
type envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// stream consumes one SSE connection until it ends. The returned error
// says how: errEndTimeout for the server's normal session cap, otherwise a
// transport or server error.
func (s *Store) stream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.eventsURL(), nil)
	if err != nil {
		return fmt.Errorf("client: request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: open stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: open stream: status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				err := s.dispatch([]byte(data.String()))
				data.Reset()
				if err != nil {
					return err
				}
			}
		case strings.HasPrefix(line, ":"):
			// Heartbeat comment.
		case strings.HasPrefix(line, "data: "):
			data.WriteString(strings.TrimPrefix(line, "data: "))
		default:
			// Field lines we don't need (event name is inside the payload).
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("client: read stream: %w", err)
	}
	return errors.New("client: stream closed")
}

// dispatch applies one event to the snapshot. A non-nil return terminates
// the stream.
func (s *Store) dispatch(raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("client: decode event: %w", err)
	}

	switch feed.EventType(env.Type) {
	case feed.EventSync:
		var ud feed.UpdateData
		if err := json.Unmarshal(env.Data, &ud); err != nil {
			return fmt.Errorf("client: decode sync: %w", err)
		}
		s.mu.Lock()
		s.replaceLocked(ud.Images)
		s.initialized = true
		s.mu.Unlock()
	case feed.EventUpdate:
		var ud feed.UpdateData
		if err := json.Unmarshal(env.Data, &ud); err != nil {
			return fmt.Errorf("client: decode update: %w", err)
		}
		s.mu.Lock()
		s.mergeLocked(ud.Images)
		s.mu.Unlock()
	case feed.EventComplete:
		var cd feed.CompleteData
		if err := json.Unmarshal(env.Data, &cd); err != nil {
			return fmt.Errorf("client: decode complete: %w", err)
		}
		s.mu.Lock()
		s.ready = cd.Ready
		s.mu.Unlock()
	case feed.EventEnd:
		var ed feed.EndData
		if err := json.Unmarshal(env.Data, &ed); err != nil {
			return fmt.Errorf("client: decode end: %w", err)
		}
		if ed.Reason == feed.ReasonTimeout {
			return errEndTimeout
		}
		return errEndCancelled
	case feed.EventError:
		var ed feed.ErrorData
		if err := json.Unmarshal(env.Data, &ed); err != nil {
			return fmt.Errorf("client: decode error event: %w", err)
		}
		return fmt.Errorf("client: server feed error: %s", ed.Message)
	}
	return nil
}

// decodeJSON decodes a JSON body into v.
func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}
