package api

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Observers are local dashboards; the daemon carries no origin policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// observeLogs upgrades the connection and attaches it to the hub. The hub
// replays every buffer before the observer joins live fan-out; this handler
// then just drains reads until the client goes away.
func (s *Server) observeLogs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	obs, err := s.hub.Attach(conn)
	if err != nil {
		s.logger.Warn("observer attach failed", "remote", r.RemoteAddr, "error", err)
		conn.Close()
		return
	}
	defer func() {
		s.hub.Detach(obs)
		conn.Close()
	}()

	// Observers don't send anything meaningful; the read loop exists to
	// notice disconnects and honor control frames.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
