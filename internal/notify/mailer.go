package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stakeport/stakeport/internal/config"
)

// Message is one outbound HTML email.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Headers map[string]string
}

// Mailer hands a message to an outbound relay. Implementations return a
// *types.DeliveryError carrying the relay's diagnostic on failure.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// NewMailer builds the mailer selected by cfg.Provider.
func NewMailer(cfg config.MailConfig) (Mailer, error) {
	from := cfg.From
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", cfg.FromName, cfg.From)
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second

	switch strings.ToLower(cfg.Provider) {
	case "", "smtp":
		return NewSMTPMailer(SMTPConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			FromName: cfg.FromName,
			StartTLS: cfg.StartTLS,
			Timeout:  timeout,
		}), nil
	case "resend":
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("mail.resend_api_key is required for the resend provider")
		}
		return NewResendMailer(cfg.ResendAPIKey, from), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}
