package email

import (
	"context"

	"github.com/Gobusters/ectologger"
)

// ConsoleSender logs messages instead of delivering them. It is the default
// provider for local development.
type ConsoleSender struct {
	logger ectologger.Logger
}

// NewConsoleSender creates a ConsoleSender.
func NewConsoleSender(logger ectologger.Logger) *ConsoleSender {
	return &ConsoleSender{logger: logger}
}

// Send logs the message envelope.
func (s *ConsoleSender) Send(ctx context.Context, msg Message) error {
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("email suppressed by console provider")
	return nil
}
