package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/catalog"
	appctx "github.com/Ramsey-B/fern/pkg/context"
)

// ImportService runs item imports in caller-driven batches.
type ImportService interface {
	Begin(ctx context.Context, ownerID string, opts catalog.BeginOptions) (*catalog.BatchResult, error)
	RunBatch(ctx context.Context, ownerID, processID string, batchSize int) (*catalog.BatchResult, error)
}

// ImportHandler handles item import API requests
type ImportHandler struct {
	service   ImportService
	batchSize int
}

// NewImportHandler creates a new import handler. batchSize applies when a request
// does not name one.
func NewImportHandler(service ImportService, batchSize int) *ImportHandler {
	return &ImportHandler{service: service, batchSize: batchSize}
}

// BeginImportRequest is the request body for starting an import
type BeginImportRequest struct {
	ForceFull            *bool `json:"force_full"`
	ForceTaxonomyRefresh bool  `json:"force_taxonomy_refresh"`
}

// RunBatchRequest is the request body for running a batch
type RunBatchRequest struct {
	BatchSize int `json:"batch_size"`
}

// RegisterRoutes registers the import routes
func (h *ImportHandler) RegisterRoutes(g *echo.Group) {
	imports := g.Group("/imports")
	imports.POST("", h.Begin)
	imports.POST("/:processId/batches", h.RunBatch)
}

// Begin handles POST /imports
func (h *ImportHandler) Begin(c echo.Context) error {
	ctx := c.Request().Context()

	ownerID, err := GetOwnerID(c)
	if err != nil {
		return err
	}

	var req BeginImportRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	result, err := h.service.Begin(ctx, ownerID, catalog.BeginOptions{
		ForceFullImport:      req.ForceFull,
		ForceTaxonomyRefresh: req.ForceTaxonomyRefresh,
	})
	if err != nil {
		return err
	}

	return CreatedResponse(c, result)
}

// RunBatch handles POST /imports/:processId/batches
func (h *ImportHandler) RunBatch(c echo.Context) error {
	ownerID, err := GetOwnerID(c)
	if err != nil {
		return err
	}

	processID := c.Param("processId")
	if processID == "" {
		return BadRequest("missing processId")
	}

	var req RunBatchRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if req.BatchSize < 0 {
		return BadRequest("batch_size must not be negative")
	}
	if req.BatchSize == 0 {
		req.BatchSize = h.batchSize
	}

	ctx := appctx.SetProcessID(c.Request().Context(), processID)
	result, err := h.service.RunBatch(ctx, ownerID, processID, req.BatchSize)
	if err != nil {
		return err
	}

	return SuccessResponse(c, result)
}
