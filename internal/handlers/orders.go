package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/orders"
)

// OrderExporter pushes store orders into the ERP.
type OrderExporter interface {
	Export(ctx context.Context, orderID int64) (*orders.ExportOutcome, error)
	HandleStatusTransition(ctx context.Context, orderID int64, from, to string) (*orders.ExportOutcome, error)
	DeadLetters(ctx context.Context, count int64) ([]orders.DeadLetter, error)
	RetryDeadLetter(ctx context.Context, id string) (*orders.ExportOutcome, error)
}

// OrderHandler handles order export API requests
type OrderHandler struct {
	exporter OrderExporter
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(exporter OrderExporter) *OrderHandler {
	return &OrderHandler{exporter: exporter}
}

// StatusTransitionRequest is the request body for an order status change
type StatusTransitionRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// RegisterRoutes registers the order routes
func (h *OrderHandler) RegisterRoutes(g *echo.Group) {
	o := g.Group("/orders")
	o.POST("/:id/export", h.Export)
	o.POST("/:id/status", h.StatusTransition)
	o.GET("/dead-letters", h.ListDeadLetters)
	o.POST("/dead-letters/:entryId/retry", h.RetryDeadLetter)
}

// Export handles POST /orders/:id/export
func (h *OrderHandler) Export(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseID(c, "id")
	if err != nil {
		return err
	}

	outcome, err := h.exporter.Export(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, outcome)
}

// StatusTransition handles POST /orders/:id/status
func (h *OrderHandler) StatusTransition(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseID(c, "id")
	if err != nil {
		return err
	}

	var req StatusTransitionRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if strings.TrimSpace(req.To) == "" {
		return BadRequest("to is required")
	}

	outcome, err := h.exporter.HandleStatusTransition(ctx, id, req.From, req.To)
	if err != nil {
		return err
	}

	return SuccessResponse(c, outcome)
}

// ListDeadLetters handles GET /orders/dead-letters
func (h *OrderHandler) ListDeadLetters(c echo.Context) error {
	ctx := c.Request().Context()

	var count int64 = 100
	if raw := c.QueryParam("count"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return BadRequest("count must be a positive integer")
		}
		count = n
	}

	entries, err := h.exporter.DeadLetters(ctx, count)
	if err != nil {
		return err
	}

	return SuccessResponse(c, entries)
}

// RetryDeadLetter handles POST /orders/dead-letters/:entryId/retry
func (h *OrderHandler) RetryDeadLetter(c echo.Context) error {
	ctx := c.Request().Context()

	entryID := c.Param("entryId")
	if entryID == "" {
		return BadRequest("missing entryId")
	}

	outcome, err := h.exporter.RetryDeadLetter(ctx, entryID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, outcome)
}
