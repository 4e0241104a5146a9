package httpapi

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// stateEvent is sent on every document change. Clients re-fetch /v1/state
// when the clock advances past what they hold; the payload stays small so
// a chatty editing session does not flood the socket.
type stateEvent struct {
	Type         string `json:"type"`
	LastModified int64  `json:"lastModified"`
}

// handleEvents upgrades to a websocket and streams change notifications
// until the client goes away. Changes are coalesced through a one-slot
// channel, so a burst of edits may surface as a single event carrying the
// latest clock.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	changed := make(chan struct{}, 1)
	unsubscribe := s.store.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	// Read loop exists only to notice the peer closing; inbound frames
	// carry no meaning.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	send := func() error {
		writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return wsjson.Write(writeCtx, conn, stateEvent{
			Type:         "state",
			LastModified: s.store.LastModified(),
		})
	}

	if err := send(); err != nil {
		return
	}

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return
		case <-changed:
			if err := send(); err != nil {
				return
			}
		case <-keepalive.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
