package handlers

import (
	"context"

	"github.com/labstack/echo/v4"
)

// ConnectionTester authenticates against the ERP from scratch.
type ConnectionTester interface {
	TestConnection(ctx context.Context) (string, error)
}

// ConnectionHandler reports whether the ERP credentials work
type ConnectionHandler struct {
	tester ConnectionTester
}

func NewConnectionHandler(tester ConnectionTester) *ConnectionHandler {
	return &ConnectionHandler{tester: tester}
}

type ConnectionResponse struct {
	Connected bool   `json:"connected"`
	ClientID  string `json:"client_id"`
}

// RegisterRoutes registers the connection routes
func (h *ConnectionHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/connection", h.Test)
}

// Test handles GET /connection
func (h *ConnectionHandler) Test(c echo.Context) error {
	clientID, err := h.tester.TestConnection(c.Request().Context())
	if err != nil {
		return err
	}

	return SuccessResponse(c, ConnectionResponse{Connected: true, ClientID: clientID})
}
