package email

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/httpclient"
)

const defaultResendBaseURL = "https://api.resend.com"

// ResendConfig holds the Resend provider settings.
type ResendConfig struct {
	APIKey  string
	From    string
	BaseURL string
}

// ResendSender delivers mail through the Resend API.
type ResendSender struct {
	cfg    ResendConfig
	client *httpclient.Client
}

// NewResendSender creates a ResendSender.
func NewResendSender(cfg ResendConfig, client *httpclient.Client) (*ResendSender, error) {
	if cfg.APIKey == "" || cfg.From == "" {
		return nil, errors.New("resend provider requires an api key and from address")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultResendBaseURL
	}
	return &ResendSender{cfg: cfg, client: client}, nil
}

// Send posts the message to Resend.
func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	payload := map[string]any{
		"from":    s.cfg.From,
		"to":      []string{msg.To},
		"subject": msg.Subject,
		"html":    msg.HTML,
	}
	headers := map[string]string{"Authorization": "Bearer " + s.cfg.APIKey}

	resp, err := s.client.PostJSON(ctx, strings.TrimRight(s.cfg.BaseURL, "/")+"/emails", headers, payload)
	if err != nil {
		return errors.Wrap(err, "failed to send email")
	}
	if !httpclient.IsSuccessStatus(resp.StatusCode) {
		return errors.Errorf("email provider returned status %d", resp.StatusCode)
	}

	return nil
}
