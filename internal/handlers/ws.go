package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/parleychat/parley/internal/relay"
)

// ServeWS upgrades the request to a WebSocket connection and hands it to
// the relay hub. Everything after the upgrade is event-driven; the HTTP
// layer's job ends here.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return h.cfg.OriginAllowed(r.Header.Get("Origin"))
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := relay.NewClient(h.hub, conn, h.base)
	h.hub.Register(client)
	client.Start()
}
