package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/stakeport/stakeport/internal/logging"
	"github.com/stakeport/stakeport/internal/metrics"
	"github.com/stakeport/stakeport/pkg/types"
)

// Dispatcher sends administrator notifications. Every send is attempted
// exactly once.
type Dispatcher struct {
	mailer  Mailer
	adminTo []string
	metrics *metrics.Collector
}

// NewDispatcher creates a dispatcher delivering to the comma-separated
// adminTo list. m may be nil.
func NewDispatcher(mailer Mailer, adminTo string, m *metrics.Collector) *Dispatcher {
	var to []string
	for _, addr := range strings.Split(adminTo, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	return &Dispatcher{mailer: mailer, adminTo: to, metrics: m}
}

// NotifyRegistration emails the administrator mailbox about a new member.
func (d *Dispatcher) NotifyRegistration(ctx context.Context, m Member) error {
	if err := validateMember(m); err != nil {
		d.metrics.RecordNotification("invalid")
		return err
	}
	if len(d.adminTo) == 0 {
		d.metrics.RecordNotification("invalid")
		return &types.ValidationError{Field: "admin_to", Reason: "no administrator recipient configured"}
	}

	subject, body, err := RenderRegistration(m)
	if err != nil {
		d.metrics.RecordNotification("failed")
		return err
	}

	err = d.mailer.Send(ctx, Message{To: d.adminTo, Subject: subject, HTML: body})
	if err != nil {
		var derr *types.DeliveryError
		if !errors.As(err, &derr) {
			derr = &types.DeliveryError{Transport: d.mailer.Name(), Diagnostic: err.Error(), Err: err}
		}
		d.metrics.RecordNotification("failed")
		logging.Warn("registration notification not delivered",
			logging.Component("notify"),
			"transport", derr.Transport,
			"diagnostic", derr.Diagnostic,
			"username", m.Username)
		d.audit(m, "failure", derr.Diagnostic)
		return derr
	}

	d.metrics.RecordNotification("sent")
	logging.Info("registration notification sent",
		logging.Component("notify"),
		"transport", d.mailer.Name(),
		"username", m.Username)
	d.audit(m, "success", "")
	return nil
}

func (d *Dispatcher) audit(m Member, result, diag string) {
	details := "transport=" + d.mailer.Name()
	if diag != "" {
		details += " diagnostic=" + diag
	}
	logging.Audit(logging.AuditEvent{
		Operation: "registration_notified",
		Actor:     m.Username,
		Target:    strings.Join(d.adminTo, ","),
		Result:    result,
		Details:   details,
	})
}

func validateMember(m Member) error {
	if strings.TrimSpace(m.Username) == "" {
		return &types.ValidationError{Field: "username", Reason: "required"}
	}
	email := strings.TrimSpace(m.Email)
	if email == "" {
		return &types.ValidationError{Field: "email", Reason: "required"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return &types.ValidationError{Field: "email", Reason: fmt.Sprintf("not an email address: %v", err)}
	}
	return nil
}
