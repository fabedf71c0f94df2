// Package email delivers transactional mail for account flows. The only
// message today is the password reset email.
package email

import (
	"bytes"
	"context"
	"embed"
	"html/template"

	"github.com/pkg/errors"
)

//go:embed templates/*.html
var templates embed.FS

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// RenderPasswordReset renders the password reset email for an organization.
func RenderPasswordReset(to, orgName, token string) (Message, error) {
	tmpl, err := template.ParseFS(templates, "templates/password_reset.html")
	if err != nil {
		return Message{}, errors.Wrap(err, "failed to parse password reset template")
	}

	var body bytes.Buffer
	err = tmpl.Execute(&body, map[string]string{
		"OrgName": orgName,
		"Token":   token,
	})
	if err != nil {
		return Message{}, errors.Wrap(err, "failed to render password reset template")
	}

	return Message{
		To:      to,
		Subject: "Reset your Clover password",
		HTML:    body.String(),
	}, nil
}
