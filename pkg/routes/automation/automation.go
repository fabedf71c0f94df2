package automation

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/automation"
	clovercontext "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Register registers automation routes
func Register(g *echo.Group) {
	g.GET("/batch", GetBatch)
	g.GET("/pending", GetPending)
}

// GetBatch claims the next batch of unexported items for the organization
func GetBatch(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "automation_handler.GetBatch")
	defer span.End()

	clientID := clovercontext.GetClientID(ctx)
	if clientID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	ctx, exporter, err := ectoinject.GetContext[*automation.Exporter](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get exporter")
	}

	resp, err := exporter.ExportBatch(ctx, clientID, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// GetPending reports how many items are waiting for export
func GetPending(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "automation_handler.GetPending")
	defer span.End()

	clientID := clovercontext.GetClientID(ctx)
	if clientID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
	}

	ctx, exporter, err := ectoinject.GetContext[*automation.Exporter](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get exporter")
	}

	count, err := exporter.Pending(ctx, clientID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]int{"pending": count})
}
