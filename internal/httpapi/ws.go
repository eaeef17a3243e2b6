package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/speakeasy/internal/observe"
)

// stateWriteTimeout bounds a single state push.
const stateWriteTimeout = 5 * time.Second

// handleStateStream pushes app state snapshots to the browser as JSON text
// messages: the current state immediately, then one message per change. A
// slow client only receives the newest state.
func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns()})
	if err != nil {
		observe.Logger(r.Context()).Warn("state stream: websocket upgrade failed", "err", err)
		return
	}
	defer conn.CloseNow()

	// The client never sends; CloseRead handles its close frame and cancels
	// ctx when it goes away.
	ctx := conn.CloseRead(r.Context())

	states, cancel := s.cfg.App.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, stateWriteTimeout)
			err := wsjson.Write(wctx, conn, st)
			wcancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) == -1 {
					observe.Logger(r.Context()).Debug("state stream: write failed", "err", err)
				}
				return
			}
		}
	}
}

func (s *Server) originPatterns() []string { return OriginPatterns(s.cfg.CORSOrigins) }

// OriginPatterns converts CORS origins such as "http://localhost:5173" to
// the host patterns websocket.Accept expects. "*" passes through; origins
// that do not parse are skipped.
func OriginPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			patterns = append(patterns, o)
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}
