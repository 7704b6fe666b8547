package notifier

import (
	"context"
	"fmt"
	"net/smtp"
)

// TicketTransport formats a ticket-creation email. Kept on stdlib
// net/smtp deliberately: no example repo in the pack carries a dedicated
// SMTP client library, and pulling one in for a single SendMail call would
// be the kind of unjustified ecosystem dependency the corpus itself never
// reaches for either (see DESIGN.md).
type TicketTransport struct {
	smtpAddr string
	from     string
	auth     smtp.Auth
}

// NewTicketTransport builds a ticket-email transport against smtpAddr
// (host:port). auth may be nil for an unauthenticated relay.
func NewTicketTransport(smtpAddr, from string, auth smtp.Auth) *TicketTransport {
	return &TicketTransport{smtpAddr: smtpAddr, from: from, auth: auth}
}

func (t *TicketTransport) Send(ctx context.Context, route Route, event Event) error {
	if route.Jira == "" {
		return nil // ticket sink not configured for this route
	}

	subject := fmt.Sprintf("[ilm] %s/%s: %s", event.Tenant, event.Family, event.Subject)
	body := fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s\r\n", route.Jira, subject, event.Message)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(t.smtpAddr, t.auth, t.from, []string{route.Jira}, []byte(body))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Transport = (*TicketTransport)(nil)
