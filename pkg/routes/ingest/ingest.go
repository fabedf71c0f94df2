package ingest

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	clovercontext "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/ingest"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Register registers bulk ingest routes
func Register(g *echo.Group) {
	g.POST("", BulkIngest)
}

// BulkIngest accepts a JSON array of records and upserts them for the
// authenticated organization
func BulkIngest(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "ingest_handler.BulkIngest")
	defer span.End()

	client := clovercontext.GetApiClient(ctx)
	if client == nil {
		return httperror.NewHTTPError(http.StatusUnauthorized, "missing api key")
	}

	var records []map[string]any
	if err := c.Bind(&records); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "request body must be a JSON array of objects")
	}

	ctx, engine, err := ectoinject.GetContext[*ingest.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get ingest engine")
	}

	resp, err := engine.IngestBatch(ctx, client, records)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}
