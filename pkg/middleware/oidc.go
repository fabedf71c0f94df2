package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/labstack/echo/v4"

	clovercontext "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ServiceClaims are the token claims an automation caller authenticates
// with. Email identifies the organization the token acts for.
type ServiceClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
}

// ClientResolver maps a verified identity to an organization.
type ClientResolver interface {
	GetByEmail(ctx context.Context, email string) (*models.ApiClient, error)
}

// OIDCAuth authenticates automation callers with tokens issued by an
// external identity provider, as an alternative to clover-issued bearer
// tokens. The token's email claim must belong to a registered organization.
func OIDCAuth(logger ectologger.Logger, issuer, clientID string, clients ClientResolver) (echo.MiddlewareFunc, error) {
	provider, err := oidc.NewProvider(context.Background(), issuer)
	if err != nil {
		return nil, err
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: clientID,
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ctx, span := tracing.StartSpan(ctx, "middleware.OIDCAuth")
			defer span.End()

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, bearerPrefix) {
				return httperror.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			raw := strings.TrimPrefix(header, bearerPrefix)

			verifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			idToken, err := verifier.Verify(verifyCtx, raw)
			if err != nil {
				logger.WithContext(ctx).WithError(err).Warn("OIDC token rejected")
				return httperror.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			var claims ServiceClaims
			if err := idToken.Claims(&claims); err != nil {
				logger.WithContext(ctx).WithError(err).Warn("Failed to parse OIDC claims")
				return httperror.NewHTTPError(http.StatusUnauthorized, "cannot parse claims")
			}

			client, err := clients.GetByEmail(ctx, claims.Email)
			if err != nil {
				return err
			}
			if client == nil {
				logger.WithContext(ctx).WithFields(map[string]any{"sub": claims.Sub}).Warn("OIDC identity has no organization")
				return httperror.NewHTTPError(http.StatusUnauthorized, "unknown organization")
			}

			ctx = clovercontext.SetClientID(ctx, client.ID)
			ctx = clovercontext.SetAuthKind(ctx, "oidc")
			ctx = clovercontext.SetApiClient(ctx, client)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}, nil
}
