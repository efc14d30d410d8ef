package email

import "context"

// Provider delivers staff notification emails.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

// Discard drops every message. It backs deployments without SMTP_HOST, where
// notifications stay in-app only.
type Discard struct{}

func (Discard) Send(context.Context, []string, string, string) error { return nil }
