package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	clovercontext "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
)

const (
	// HeaderAPIKey is the header key for ingest api keys
	HeaderAPIKey = "X-API-Key"

	bearerPrefix = "Bearer "
)

// Authenticator resolves request credentials to an organization.
type Authenticator interface {
	AuthenticateAPIKey(ctx context.Context, apiKey string) (*models.ApiClient, error)
	AuthenticateBearer(ctx context.Context, token string) (*models.ApiClient, error)
}

// APIKeyAuth authenticates requests by the X-API-Key header and stores the
// resolved organization on the request context.
func APIKeyAuth(service Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			client, err := service.AuthenticateAPIKey(ctx, c.Request().Header.Get(HeaderAPIKey))
			if err != nil {
				return err
			}

			ctx = clovercontext.SetClientID(ctx, client.ID)
			ctx = clovercontext.SetAuthKind(ctx, "api-key")
			ctx = clovercontext.SetApiClient(ctx, client)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// BearerAuth authenticates requests by an Authorization bearer token.
func BearerAuth(service Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, bearerPrefix) {
				return httperror.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			client, err := service.AuthenticateBearer(ctx, strings.TrimPrefix(header, bearerPrefix))
			if err != nil {
				return err
			}

			ctx = clovercontext.SetClientID(ctx, client.ID)
			ctx = clovercontext.SetAuthKind(ctx, "bearer")
			ctx = clovercontext.SetApiClient(ctx, client)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}
