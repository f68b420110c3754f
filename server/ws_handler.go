package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jrsteele09/go-portal-sessions/tabs"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Dashboard clients connect from the app's own pages.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type watchMessage struct {
	Tabs map[string]tabs.TabRecord `json:"tabs"`
}

// WatchHandler streams the tab map over a websocket: the current snapshot on
// connect, then one message per observed change.
func (s *Server) WatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		updates, cancel := s.watcher.Subscribe()
		defer cancel()

		if err := writeSnapshot(conn, s.watcher.Snapshot()); err != nil {
			return
		}

		// Read pump: the client never sends data frames, but reading is
		// what surfaces close frames and dead connections.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case snapshot, ok := <-updates:
				if !ok {
					return
				}
				if err := writeSnapshot(conn, snapshot); err != nil {
					return
				}
			case <-done:
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snapshot map[string]tabs.TabRecord) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(watchMessage{Tabs: snapshot})
}
