package handler

import (
	"church-portal-be/internal/identity"
	"church-portal-be/internal/pkg/logger"
	"church-portal-be/internal/pkg/serverutils"
	internalWS "church-portal-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// GatewayHandler upgrades /ws requests into realtime connections.
type GatewayHandler struct {
	hub        *internalWS.Hub
	dispatcher internalWS.Dispatcher
	releaser   internalWS.Releaser
	verifier   identity.Verifier
	limits     internalWS.Limits
	logger     logger.ILogger
}

func NewGatewayHandler(
	hub *internalWS.Hub,
	dispatcher internalWS.Dispatcher,
	releaser internalWS.Releaser,
	verifier identity.Verifier,
	limits internalWS.Limits,
	log logger.ILogger,
) *GatewayHandler {
	return &GatewayHandler{
		hub:        hub,
		dispatcher: dispatcher,
		releaser:   releaser,
		verifier:   verifier,
		limits:     limits,
		logger:     log,
	}
}

// ServeWs authenticates the handshake when a token is present. Connections without one are
// accepted and may attach credentials later with auth.attach.
func (h *GatewayHandler) ServeWs(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	var ident *identity.Identity
	if tokenStr := serverutils.BearerToken(c); tokenStr != "" {
		verified, err := h.verifier.Verify(c.UserContext(), tokenStr)
		if err != nil {
			h.logger.Warn("GatewayHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err})
			return c.Status(fiber.StatusUnauthorized).JSON(serverutils.ErrorResponse(fiber.StatusUnauthorized, "Invalid token"))
		}
		ident = verified
	}

	return websocket.New(func(conn *websocket.Conn) {
		internalWS.ServeWs(h.hub, conn, ident, h.dispatcher, h.releaser, h.limits, h.logger)
	})(c)
}

func (h *GatewayHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ws", h.ServeWs)
}
