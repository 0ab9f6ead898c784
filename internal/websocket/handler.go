package websocket

import (
	"church-portal-be/internal/identity"
	"church-portal-be/internal/pkg/logger"

	"github.com/gofiber/websocket/v2"
)

// ServeWs runs one connection until the peer leaves. ident may be nil for connections that
// will attach credentials later.
func ServeWs(hub *Hub, c *websocket.Conn, ident *identity.Identity, dispatcher Dispatcher, releaser Releaser, limits Limits, log logger.ILogger) {
	client := newClient(hub, c, dispatcher, releaser, limits, log)
	hub.add(client)

	if ident != nil {
		client.SetIdentity(ident)
		for _, group := range identity.Groups(ident) {
			client.Join(group)
		}
	}

	log.Info("Gateway", "Connection opened", map[string]interface{}{
		"connection_id": client.id,
		"authenticated": ident != nil,
	})

	// The fiber handler must not return while either pump still uses the connection.
	writerDone := make(chan struct{})
	go func() {
		client.writePump()
		close(writerDone)
	}()
	client.readPump()
	client.release()
	<-writerDone

	log.Info("Gateway", "Connection closed", map[string]interface{}{"connection_id": client.id})
}
