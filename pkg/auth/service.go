// Package auth implements organization registration and the credential flows
// built on it: api keys, bearer tokens, and password reset. Raw secrets are
// returned to the caller exactly once; only sha256 digests are stored.
package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/email"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/secrets"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ClientStore persists api client organizations.
type ClientStore interface {
	Create(ctx context.Context, req models.RegisterClientRequest, apiKeySHA, passwordHash string) (*models.ApiClient, error)
	GetByID(ctx context.Context, id string) (*models.ApiClient, error)
	GetByEmail(ctx context.Context, email string) (*models.ApiClient, error)
	GetByAPIKeySHA(ctx context.Context, apiKeySHA string) (*models.ApiClient, error)
	UpdateAPIKey(ctx context.Context, clientID, apiKeySHA string, resetAt time.Time) error
	UpdatePassword(ctx context.Context, clientID, passwordHash string) error
}

// TokenStore persists access and password reset tokens.
type TokenStore interface {
	CreateAccessToken(ctx context.Context, apiClientID, tokenSHA string, expiresAt time.Time) (*models.AccessToken, error)
	GetAccessToken(ctx context.Context, tokenSHA string) (*models.AccessToken, error)
	RevokeAccessTokens(ctx context.Context, apiClientID string) error
	CreatePasswordResetToken(ctx context.Context, apiClientID, tokenSHA string, expiresAt time.Time) (*models.PasswordResetToken, error)
	GetPasswordResetToken(ctx context.Context, tokenSHA string) (*models.PasswordResetToken, error)
	MarkResetTokenUsed(ctx context.Context, id string) error
}

// ServiceConfig holds configuration for the auth service
type ServiceConfig struct {
	// AccessTokenTTL is how long bearer tokens stay valid
	AccessTokenTTL time.Duration
	// ResetTokenTTL is how long password reset tokens stay valid
	ResetTokenTTL time.Duration
	// APIKeyResetCooldown is the minimum gap between api key resets
	APIKeyResetCooldown time.Duration
	// DebugResetTokens echoes reset tokens in responses instead of relying
	// on email delivery. Never enable outside local development.
	DebugResetTokens bool
}

// DefaultServiceConfig returns the default auth configuration
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		AccessTokenTTL:      24 * time.Hour,
		ResetTokenTTL:       time.Hour,
		APIKeyResetCooldown: 30 * time.Minute,
	}
}

// Service implements registration and credential flows
type Service struct {
	logger  ectologger.Logger
	clients ClientStore
	tokens  TokenStore
	emailer email.Sender
	config  ServiceConfig
}

// NewService creates a new auth service
func NewService(logger ectologger.Logger, clients ClientStore, tokens TokenStore, emailer email.Sender, config ServiceConfig) *Service {
	return &Service{
		logger:  logger,
		clients: clients,
		tokens:  tokens,
		emailer: emailer,
		config:  config,
	}
}

// Register creates an organization and returns its api key. The key is shown
// exactly once; afterwards only its digest exists.
func (s *Service) Register(ctx context.Context, req models.RegisterClientRequest) (*models.RegisterClientResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "auth.Service.Register")
	defer span.End()

	apiKey, err := secrets.GenerateAPIKey()
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to generate api key")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to register organization")
	}

	passwordHash, err := secrets.HashPassword(req.Password)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to hash password")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to register organization")
	}

	client, err := s.clients.Create(ctx, req, secrets.Digest(apiKey), passwordHash)
	if err != nil {
		return nil, err
	}

	return &models.RegisterClientResponse{
		ClientID:      client.ID,
		APIKey:        apiKey,
		DistributorID: client.DistributorID,
	}, nil
}

// IssueToken exchanges email/password credentials for a bearer token.
func (s *Service) IssueToken(ctx context.Context, req models.TokenRequest) (*models.TokenResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "auth.Service.IssueToken")
	defer span.End()

	client, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	token, err := secrets.GenerateToken()
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to generate access token")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to issue token")
	}

	expiresAt := time.Now().UTC().Add(s.config.AccessTokenTTL)
	if _, err := s.tokens.CreateAccessToken(ctx, client.ID, secrets.Digest(token), expiresAt); err != nil {
		return nil, err
	}

	return &models.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
	}, nil
}

// ResetAPIKey replaces the organization's api key. The old key stops working
// immediately. Resets are rate limited per organization.
func (s *Service) ResetAPIKey(ctx context.Context, req models.ResetAPIKeyRequest) (*models.ResetAPIKeyResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "auth.Service.ResetAPIKey")
	defer span.End()

	client, err := s.authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	if client.LastAPIKeyResetAt != nil {
		elapsed := time.Since(*client.LastAPIKeyResetAt)
		if elapsed < s.config.APIKeyResetCooldown {
			retryAfter := int64((s.config.APIKeyResetCooldown - elapsed).Seconds()) + 1
			return nil, httperror.NewHTTPError(http.StatusTooManyRequests, "api key was reset recently").
				AddMetaValue("retry_after", retryAfter)
		}
	}

	apiKey, err := secrets.GenerateAPIKey()
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to generate api key")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reset api key")
	}

	if err := s.clients.UpdateAPIKey(ctx, client.ID, secrets.Digest(apiKey), time.Now().UTC()); err != nil {
		return nil, err
	}

	return &models.ResetAPIKeyResponse{APIKey: apiKey}, nil
}

// RequestPasswordReset issues a single-use reset token and emails it to the
// organization. The response never reveals whether the email is registered.
func (s *Service) RequestPasswordReset(ctx context.Context, req models.PasswordResetRequest) (*models.PasswordResetResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "auth.Service.RequestPasswordReset")
	defer span.End()

	response := &models.PasswordResetResponse{Status: "ok"}

	client, err := s.clients.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return response, nil
	}

	token, err := secrets.GenerateToken()
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to generate reset token")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to request password reset")
	}

	expiresAt := time.Now().UTC().Add(s.config.ResetTokenTTL)
	if _, err := s.tokens.CreatePasswordResetToken(ctx, client.ID, secrets.Digest(token), expiresAt); err != nil {
		return nil, err
	}

	msg, err := email.RenderPasswordReset(client.Email, client.OrgName, token)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to render reset email")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to request password reset")
	}

	if err := s.emailer.Send(ctx, msg); err != nil {
		// The token row exists either way; delivery failures should not
		// reveal registration state to the caller.
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"client_id": client.ID,
		}).Error("Failed to send reset email")
	}

	if s.config.DebugResetTokens {
		response.ResetToken = token
	}

	return response, nil
}

// ConfirmPasswordReset consumes a reset token, sets the new password, and
// revokes every outstanding bearer token.
func (s *Service) ConfirmPasswordReset(ctx context.Context, req models.PasswordResetConfirmRequest) (*models.PasswordResetConfirmResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "auth.Service.ConfirmPasswordReset")
	defer span.End()

	token, err := s.tokens.GetPasswordResetToken(ctx, secrets.Digest(req.ResetToken))
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, httperror.NewHTTPError(http.StatusUnauthorized, "invalid or expired reset token")
	}

	passwordHash, err := secrets.HashPassword(req.NewPassword)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to hash password")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reset password")
	}

	if err := s.tokens.MarkResetTokenUsed(ctx, token.ID); err != nil {
		return nil, err
	}

	if err := s.clients.UpdatePassword(ctx, token.APIClientID, passwordHash); err != nil {
		return nil, err
	}

	if err := s.tokens.RevokeAccessTokens(ctx, token.APIClientID); err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"client_id": token.APIClientID,
	}).Info("Password reset completed")

	return &models.PasswordResetConfirmResponse{Status: "ok"}, nil
}

// AuthenticateAPIKey resolves an api key to its organization.
func (s *Service) AuthenticateAPIKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	ctx, span := tracing.StartSpan(ctx, "auth.Service.AuthenticateAPIKey")
	defer span.End()

	if apiKey == "" {
		return nil, httperror.NewHTTPError(http.StatusUnauthorized, "missing api key")
	}

	client, err := s.clients.GetByAPIKeySHA(ctx, secrets.Digest(apiKey))
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, httperror.NewHTTPError(http.StatusUnauthorized, "invalid api key")
	}

	return client, nil
}

// AuthenticateBearer resolves a bearer token to its organization.
func (s *Service) AuthenticateBearer(ctx context.Context, token string) (*models.ApiClient, error) {
	ctx, span := tracing.StartSpan(ctx, "auth.Service.AuthenticateBearer")
	defer span.End()

	if token == "" {
		return nil, httperror.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
	}

	access, err := s.tokens.GetAccessToken(ctx, secrets.Digest(token))
	if err != nil {
		return nil, err
	}
	if access == nil {
		return nil, httperror.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	}

	client, err := s.clients.GetByID(ctx, access.APIClientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, httperror.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	}

	return client, nil
}

// authenticate verifies email/password credentials. Unknown emails and wrong
// passwords return the same error.
func (s *Service) authenticate(ctx context.Context, emailAddr, password string) (*models.ApiClient, error) {
	client, err := s.clients.GetByEmail(ctx, emailAddr)
	if err != nil {
		return nil, err
	}
	if client == nil || !secrets.VerifyPassword(client.PasswordHash, password) {
		return nil, httperror.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	return client, nil
}
