package notify

import (
	"context"
	"net/url"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"

	"github.com/stakeport/stakeport/internal/logging"
	"github.com/stakeport/stakeport/pkg/types"
)

// ResendMailer delivers through the Resend HTTP API.
type ResendMailer struct {
	client *resend.Client
	from   string
}

// NewResendMailer creates a mailer sending as from ("Name <addr>" or addr).
func NewResendMailer(apiKey, from string) *ResendMailer {
	return &ResendMailer{client: resend.NewClient(apiKey), from: from}
}

// SetBaseURL points the client at a different API host.
func (m *ResendMailer) SetBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	m.client.BaseURL = u
	return nil
}

func (m *ResendMailer) Name() string { return "resend" }

// Send implements Mailer.
func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	headers := map[string]string{"X-Entity-Ref-ID": uuid.New().String()}
	for k, v := range msg.Headers {
		headers[k] = v
	}

	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      msg.To,
		Subject: msg.Subject,
		Html:    msg.HTML,
		Headers: headers,
		Tags:    []resend.Tag{{Name: "category", Value: "registration"}},
	})
	if err != nil {
		return &types.DeliveryError{Transport: m.Name(), Diagnostic: err.Error(), Err: err}
	}

	logging.Debug("resend accepted message",
		logging.Component("notify"),
		"email_id", sent.Id)
	return nil
}
