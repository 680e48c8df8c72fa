package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/catalog"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/orders"
	"github.com/Ramsey-B/fern/pkg/platform"
	"github.com/Ramsey-B/fern/pkg/softone"
	"github.com/Ramsey-B/fern/pkg/woocommerce"
)

// ParseID parses a positive integer id from a path parameter
func ParseID(c echo.Context, param string) (int64, error) {
	idStr := c.Param(param)
	if idStr == "" {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "missing "+param)
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be a positive integer", param)
	}

	return id, nil
}

// GetOwnerID returns the caller identity import runs are owned by
func GetOwnerID(c echo.Context) (string, error) {
	ownerID := appctx.GetUserID(c.Request().Context())
	if ownerID == "" {
		return "", httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return ownerID, nil
}

// SuccessResponse returns a 200 OK with data
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// CreatedResponse returns a 201 Created with data
func CreatedResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, data)
}

// BadRequest returns a 400 Bad Request error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}

// ClassifyError maps sync errors onto HTTP statuses for middleware.Error.
func ClassifyError(err error) (int, string, bool) {
	var (
		configErr *softone.ConfigError
		authErr   *softone.AuthError
		apiErr    *softone.APIError
		wcErr     *woocommerce.APIError
	)

	switch {
	case errors.As(err, &configErr):
		return http.StatusInternalServerError, configErr.Error(), true
	case errors.As(err, &authErr):
		return http.StatusBadGateway, authErr.Error(), true
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, apiErr.Error(), true
	case errors.Is(err, catalog.ErrOwnerMismatch):
		return http.StatusForbidden, err.Error(), true
	case errors.Is(err, catalog.ErrStateNotFound), errors.Is(err, platform.ErrNotFound), errors.Is(err, orders.ErrDeadLetterNotFound):
		return http.StatusNotFound, err.Error(), true
	case errors.Is(err, catalog.ErrSweepInProgress):
		return http.StatusConflict, err.Error(), true
	case errors.As(err, &wcErr):
		return http.StatusBadGateway, wcErr.Error(), true
	}
	return 0, "", false
}
