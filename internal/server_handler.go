package internal

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	Subprotocols:    []string{"v12.stomp", "v11.stomp"},
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades an authenticated request to a STOMP session. Banned users
// are turned away before the upgrade.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	authCtx, user, err := s.currentUser(r)
	if err != nil {
		writeError(w, authStatus(err), err)
		return
	}
	if user.BannedAt(s.now()) {
		writeError(w, http.StatusForbidden, errBanned)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("upgrade error")
		return
	}

	client := newClient(s, conn, *authCtx)
	s.hub.register(client)
	s.metrics.IncConn()

	go client.writePump()
	go client.readPump()
}
