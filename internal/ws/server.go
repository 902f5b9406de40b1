package ws

import (
	"net/http"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/sirupsen/logrus"
)

// StatsProvider supplies the snapshot sent on request:stats
type StatsProvider func() interface{}

// NewServer creates the Socket.IO server dashboards subscribe to for
// flare outcomes. Serve must be run by the caller.
func NewServer(logger *logrus.Entry, stats StatsProvider) *socketio.Server {
	logger = logger.WithField("component", "websocket")

	server := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&polling.Transport{
				CheckOrigin: allowAllOrigins,
			},
			&websocket.Transport{
				CheckOrigin: allowAllOrigins,
			},
		},
	})

	server.OnConnect("/", func(s socketio.Conn) error {
		logger.Debugf("Client connected: %s", s.ID())
		s.Emit("connected", map[string]interface{}{
			"ok": true,
		})
		return nil
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		logger.Debugf("Client disconnected: %s, reason: %s", s.ID(), reason)
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		if s == nil {
			logger.Warnf("Server error: %v", e)
			return
		}
		logger.Warnf("Error for client %s: %v", s.ID(), e)
	})

	server.OnEvent("/", "request:stats", func(s socketio.Conn) {
		if stats == nil {
			return
		}
		s.Emit("dispatcher:stats", stats())
	})

	return server
}

// allowAllOrigins accepts every origin; the dashboard is served from another host
func allowAllOrigins(r *http.Request) bool {
	return true
}
