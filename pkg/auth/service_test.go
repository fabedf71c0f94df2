package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/email"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/secrets"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type stubClientStore struct {
	byEmail    map[string]*models.ApiClient
	byKeySHA   map[string]*models.ApiClient
	byID       map[string]*models.ApiClient
	created    []models.RegisterClientRequest
	createErr  error
	updatedKey string
	updatedPwd string
}

func newStubClientStore() *stubClientStore {
	return &stubClientStore{
		byEmail:  map[string]*models.ApiClient{},
		byKeySHA: map[string]*models.ApiClient{},
		byID:     map[string]*models.ApiClient{},
	}
}

func (s *stubClientStore) add(client *models.ApiClient) {
	s.byEmail[client.Email] = client
	s.byKeySHA[client.APIKeySHA] = client
	s.byID[client.ID] = client
}

func (s *stubClientStore) Create(_ context.Context, req models.RegisterClientRequest, apiKeySHA, passwordHash string) (*models.ApiClient, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = append(s.created, req)
	client := &models.ApiClient{
		ID:            "client-1",
		Email:         req.Email,
		OrgName:       req.OrgName,
		DistributorID: req.DistributorID,
		APIKeySHA:     apiKeySHA,
		PasswordHash:  passwordHash,
		CreatedAt:     time.Now().UTC(),
	}
	s.add(client)
	return client, nil
}

func (s *stubClientStore) GetByID(_ context.Context, id string) (*models.ApiClient, error) {
	return s.byID[id], nil
}

func (s *stubClientStore) GetByEmail(_ context.Context, email string) (*models.ApiClient, error) {
	return s.byEmail[email], nil
}

func (s *stubClientStore) GetByAPIKeySHA(_ context.Context, sha string) (*models.ApiClient, error) {
	return s.byKeySHA[sha], nil
}

func (s *stubClientStore) UpdateAPIKey(_ context.Context, clientID, apiKeySHA string, resetAt time.Time) error {
	s.updatedKey = apiKeySHA
	if client, ok := s.byID[clientID]; ok {
		delete(s.byKeySHA, client.APIKeySHA)
		client.APIKeySHA = apiKeySHA
		client.LastAPIKeyResetAt = &resetAt
		s.byKeySHA[apiKeySHA] = client
	}
	return nil
}

func (s *stubClientStore) UpdatePassword(_ context.Context, clientID, passwordHash string) error {
	s.updatedPwd = passwordHash
	if client, ok := s.byID[clientID]; ok {
		client.PasswordHash = passwordHash
	}
	return nil
}

type stubTokenStore struct {
	accessBySHA map[string]*models.AccessToken
	resetBySHA  map[string]*models.PasswordResetToken
	revoked     []string
	markedUsed  []string
	markErr     error
}

func newStubTokenStore() *stubTokenStore {
	return &stubTokenStore{
		accessBySHA: map[string]*models.AccessToken{},
		resetBySHA:  map[string]*models.PasswordResetToken{},
	}
}

func (s *stubTokenStore) CreateAccessToken(_ context.Context, apiClientID, tokenSHA string, expiresAt time.Time) (*models.AccessToken, error) {
	token := &models.AccessToken{ID: "token-1", APIClientID: apiClientID, TokenSHA: tokenSHA, ExpiresAt: expiresAt}
	s.accessBySHA[tokenSHA] = token
	return token, nil
}

func (s *stubTokenStore) GetAccessToken(_ context.Context, tokenSHA string) (*models.AccessToken, error) {
	return s.accessBySHA[tokenSHA], nil
}

func (s *stubTokenStore) RevokeAccessTokens(_ context.Context, apiClientID string) error {
	s.revoked = append(s.revoked, apiClientID)
	for sha, token := range s.accessBySHA {
		if token.APIClientID == apiClientID {
			delete(s.accessBySHA, sha)
		}
	}
	return nil
}

func (s *stubTokenStore) CreatePasswordResetToken(_ context.Context, apiClientID, tokenSHA string, expiresAt time.Time) (*models.PasswordResetToken, error) {
	token := &models.PasswordResetToken{ID: "reset-1", APIClientID: apiClientID, TokenSHA: tokenSHA, ExpiresAt: expiresAt}
	s.resetBySHA[tokenSHA] = token
	return token, nil
}

func (s *stubTokenStore) GetPasswordResetToken(_ context.Context, tokenSHA string) (*models.PasswordResetToken, error) {
	return s.resetBySHA[tokenSHA], nil
}

func (s *stubTokenStore) MarkResetTokenUsed(_ context.Context, id string) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.markedUsed = append(s.markedUsed, id)
	return nil
}

type recordingSender struct {
	sent []email.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg email.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type authHarness struct {
	service *Service
	clients *stubClientStore
	tokens  *stubTokenStore
	emailer *recordingSender
}

func newAuthHarness(t *testing.T, config ServiceConfig) *authHarness {
	t.Helper()
	clients := newStubClientStore()
	tokens := newStubTokenStore()
	emailer := &recordingSender{}
	return &authHarness{
		service: NewService(testLogger(), clients, tokens, emailer, config),
		clients: clients,
		tokens:  tokens,
		emailer: emailer,
	}
}

func registerReq() models.RegisterClientRequest {
	return models.RegisterClientRequest{
		Email:         "ops@acme.test",
		OrgName:       "Acme",
		DistributorID: "acme-dist",
		Password:      "correct horse battery",
	}
}

func TestService_Register(t *testing.T) {
	h := newAuthHarness(t, DefaultServiceConfig())

	resp, err := h.service.Register(context.Background(), registerReq())
	require.NoError(t, err)

	assert.Equal(t, "client-1", resp.ClientID)
	assert.Equal(t, "acme-dist", resp.DistributorID)
	assert.True(t, strings.HasPrefix(resp.APIKey, "sk_"))

	// Only the digest is stored.
	stored := h.clients.byEmail["ops@acme.test"]
	require.NotNil(t, stored)
	assert.NotEqual(t, resp.APIKey, stored.APIKeySHA)
	assert.Equal(t, secrets.Digest(resp.APIKey), stored.APIKeySHA)
	assert.NotEqual(t, "correct horse battery", stored.PasswordHash)
}

func TestService_Register_StoreErrorSurfaces(t *testing.T) {
	h := newAuthHarness(t, DefaultServiceConfig())
	h.clients.createErr = httperror.NewHTTPError(http.StatusConflict, "organization already registered")

	_, err := h.service.Register(context.Background(), registerReq())
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestService_IssueToken(t *testing.T) {
	h := newAuthHarness(t, DefaultServiceConfig())
	_, err := h.service.Register(context.Background(), registerReq())
	require.NoError(t, err)

	resp, err := h.service.IssueToken(context.Background(), models.TokenRequest{
		Email:    "ops@acme.test",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), resp.ExpiresAt, time.Minute)

	client, err := h.service.AuthenticateBearer(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "client-1", client.ID)
}

func TestService_IssueToken_BadCredentials(t *testing.T) {
	h := newAuthHarness(t, DefaultServiceConfig())
	_, err := h.service.Register(context.Background(), registerReq())
	require.NoError(t, err)

	for _, req := range []models.TokenRequest{
		{Email: "ops@acme.test", Password: "wrong"},
		{Email: "nobody@acme.test", Password: "correct horse battery"},
	} {
		_, err := h.service.IssueToken(context.Background(), req)
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, httperror.GetStatusCode(err))
	}
}

func TestService_ResetAPIKey(t *testing.T) {
	h := newAuthHarness(t, DefaultServiceConfig())
	registered, err := h.service.Register(context.Background(), registerReq())
	require.NoError(t, err)

	resp, err := h.service.ResetAPIKey(context.Background(), models.ResetAPIKeyRequest{
		Email:    "ops@acme.test",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.APIKey, "sk_"))
	assert.NotEqual(t, registered.APIKey, resp.APIKey)

	// The old key no longer authenticates, the new one does.
	_, err = h.service.AuthenticateAPIKey(context.Background(), registered.APIKey)
	require.Error(t, err)
	client, err := h.service.AuthenticateAPIKey(context.Background(), resp.APIKey)
	require.NoError(t, err)
	assert.Equal(t, "client-1", client.ID)
}

func TestService_ResetAPIKey_Cooldown(t *testing.T) {
	h := newAuthHarness(t, DefaultServiceConfig())
	_, err := h.service.Register(context.Background(), registerReq())
	require.NoError(t, err)

	req := models.ResetAPIKeyRequest{Email: "ops@acme.test", Password: "correct horse battery"}
	_, err = h.service.ResetAPIKey(context.Background(), req)
	require.NoError(t, err)

	_, err = h.service.ResetAPIKey(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, httperror.GetStatusCode(err))
}

func TestService_ResetAPIKey_CooldownExpired(t *testing.T) {
	h := newAuthHarness(t, DefaultServiceConfig())
	_, err := h.service.Register(context.Background(), registerReq())
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Hour)
	h.clients.byID["client-1"].LastAPIKeyResetAt = &past

	_, err = h.service.ResetAPIKey(context.Background(), models.ResetAPIKeyRequest{
		Email:    "ops@acme.test",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
}

func TestService_RequestPasswordReset(t *testing.T) {
	h := newAuthHarness(t, DefaultServiceConfig())
	_, err := h.service.Register(context.Background(), registerReq())
	require.NoError(t, err)

	resp, err := h.service.RequestPasswordReset(context.Background(), models.PasswordResetRequest{Email: "ops@acme.test"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.ResetToken)

	require.Len(t, h.emailer.sent, 1)
	assert.Equal(t, "ops@acme.test", h.emailer.sent[0].To)
	assert.Len(t, h.tokens.resetBySHA, 1)
}

func TestService_RequestPasswordReset_UnknownEmailIndistinguishable(t *testing.T) {
	h := newAuthHarness(t, DefaultServiceConfig())

	resp, err := h.service.RequestPasswordReset(context.Background(), models.PasswordResetRequest{Email: "nobody@acme.test"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, h.emailer.sent)
	assert.Empty(t, h.tokens.resetBySHA)
}

func TestService_RequestPasswordReset_DebugEchoesToken(t *testing.T) {
	cfg := DefaultServiceConfig()
	cfg.DebugResetTokens = true
	h := newAuthHarness(t, cfg)
	_, err := h.service.Register(context.Background(), registerReq())
	require.NoError(t, err)

	resp, err := h.service.RequestPasswordReset(context.Background(), models.PasswordResetRequest{Email: "ops@acme.test"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ResetToken)
}

func TestService_RequestPasswordReset_DeliveryFailureStillOK(t *testing.T) {
	h := newAuthHarness(t, DefaultServiceConfig())
	_, err := h.service.Register(context.Background(), registerReq())
	require.NoError(t, err)
	h.emailer.err = errors.New("smtp unreachable")

	resp, err := h.service.RequestPasswordReset(context.Background(), models.PasswordResetRequest{Email: "ops@acme.test"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestService_ConfirmPasswordReset(t *testing.T) {
	cfg := DefaultServiceConfig()
	cfg.DebugResetTokens = true
	h := newAuthHarness(t, cfg)
	_, err := h.service.Register(context.Background(), registerReq())
	require.NoError(t, err)

	// An outstanding bearer token that must be revoked by the reset.
	issued, err := h.service.IssueToken(context.Background(), models.TokenRequest{
		Email:    "ops@acme.test",
		Password: "correct horse battery",
	})
	require.NoError(t, err)

	requested, err := h.service.RequestPasswordReset(context.Background(), models.PasswordResetRequest{Email: "ops@acme.test"})
	require.NoError(t, err)

	resp, err := h.service.ConfirmPasswordReset(context.Background(), models.PasswordResetConfirmRequest{
		ResetToken:  requested.ResetToken,
		NewPassword: "an entirely new phrase",
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)

	assert.Equal(t, []string{"reset-1"}, h.tokens.markedUsed)
	assert.Equal(t, []string{"client-1"}, h.tokens.revoked)

	_, err = h.service.AuthenticateBearer(context.Background(), issued.AccessToken)
	require.Error(t, err)

	_, err = h.service.IssueToken(context.Background(), models.TokenRequest{
		Email:    "ops@acme.test",
		Password: "an entirely new phrase",
	})
	require.NoError(t, err)
}

func TestService_ConfirmPasswordReset_UnknownToken(t *testing.T) {
	h := newAuthHarness(t, DefaultServiceConfig())

	_, err := h.service.ConfirmPasswordReset(context.Background(), models.PasswordResetConfirmRequest{
		ResetToken:  "bogus",
		NewPassword: "whatever phrase",
	})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, httperror.GetStatusCode(err))
}

func TestService_AuthenticateAPIKey(t *testing.T) {
	h := newAuthHarness(t, DefaultServiceConfig())
	registered, err := h.service.Register(context.Background(), registerReq())
	require.NoError(t, err)

	client, err := h.service.AuthenticateAPIKey(context.Background(), registered.APIKey)
	require.NoError(t, err)
	assert.Equal(t, "client-1", client.ID)

	for _, key := range []string{"", "sk_not_a_real_key"} {
		_, err := h.service.AuthenticateAPIKey(context.Background(), key)
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, httperror.GetStatusCode(err))
	}
}
