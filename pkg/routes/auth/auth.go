package auth

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/auth"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var validate = validator.New()

// Register registers auth routes
func Register(g *echo.Group) {
	g.POST("/token", IssueToken)
	g.POST("/api-key/reset", ResetAPIKey)
	g.POST("/password-reset/request", RequestPasswordReset)
	g.POST("/password-reset/confirm", ConfirmPasswordReset)
}

// IssueToken exchanges email/password credentials for a bearer token
func IssueToken(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "auth_handler.IssueToken")
	defer span.End()

	var req models.TokenRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, service, err := ectoinject.GetContext[*auth.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get auth service")
	}

	resp, err := service.IssueToken(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// ResetAPIKey replaces the organization's api key
func ResetAPIKey(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "auth_handler.ResetAPIKey")
	defer span.End()

	var req models.ResetAPIKeyRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, service, err := ectoinject.GetContext[*auth.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get auth service")
	}

	resp, err := service.ResetAPIKey(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}

// RequestPasswordReset issues a single-use reset token and emails it
func RequestPasswordReset(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "auth_handler.RequestPasswordReset")
	defer span.End()

	var req models.PasswordResetRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, service, err := ectoinject.GetContext[*auth.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get auth service")
	}

	resp, err := service.RequestPasswordReset(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, resp)
}

// ConfirmPasswordReset consumes a reset token and sets the new password
func ConfirmPasswordReset(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "auth_handler.ConfirmPasswordReset")
	defer span.End()

	var req models.PasswordResetConfirmRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, service, err := ectoinject.GetContext[*auth.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get auth service")
	}

	resp, err := service.ConfirmPasswordReset(ctx, req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, resp)
}
