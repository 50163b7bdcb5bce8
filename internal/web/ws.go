package web

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/sweeney/relay-sensor/internal/status"
)

// handleWS streams the status JSON to the client every WSInterval until the
// client goes away or the server shuts down.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Error("ws accept", "err", err)
		return
	}
	defer conn.CloseNow()

	// Client messages are not used; CloseRead handles control frames and
	// cancels ctx when the client closes.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(s.opts.WSInterval)
	defer ticker.Stop()

	for {
		if err := s.writeSnapshot(ctx, conn); err != nil {
			s.logger.Debug("ws client gone", "err", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			conn.Close(websocket.StatusGoingAway, "server shutdown")
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) writeSnapshot(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, status.FormatJSON(s.tracker.Snapshot()))
}
