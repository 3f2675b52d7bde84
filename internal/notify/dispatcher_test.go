package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stakeport/stakeport/internal/metrics"
	"github.com/stakeport/stakeport/pkg/types"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (f *fakeMailer) Name() string { return "fake" }

func (f *fakeMailer) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestNotifyRegistration_Sends(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewDispatcher(mailer, "ops@example.com, admin@example.com", metrics.NewCollector())

	err := d.NotifyRegistration(context.Background(), Member{Username: "satoshi", Email: "s@example.com"})
	require.NoError(t, err)

	require.Equal(t, 1, mailer.count())
	msg := mailer.sent[0]
	assert.Equal(t, []string{"ops@example.com", "admin@example.com"}, msg.To)
	assert.Contains(t, msg.Subject, "satoshi")
	assert.Contains(t, msg.HTML, Placeholder)
}

func TestNotifyRegistration_Validation(t *testing.T) {
	cases := []struct {
		name   string
		member Member
		field  string
	}{
		{"missing username", Member{Email: "s@example.com"}, "username"},
		{"blank username", Member{Username: "  ", Email: "s@example.com"}, "username"},
		{"missing email", Member{Username: "satoshi"}, "email"},
		{"malformed email", Member{Username: "satoshi", Email: "not-an-email"}, "email"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mailer := &fakeMailer{}
			d := NewDispatcher(mailer, "ops@example.com", nil)

			err := d.NotifyRegistration(context.Background(), tc.member)
			var verr *types.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.ErrorIs(t, err, types.ErrValidation)
			assert.Zero(t, mailer.count(), "nothing may be sent for invalid input")
		})
	}
}

func TestNotifyRegistration_NoRecipient(t *testing.T) {
	mailer := &fakeMailer{}
	d := NewDispatcher(mailer, " , ", nil)

	err := d.NotifyRegistration(context.Background(), Member{Username: "satoshi", Email: "s@example.com"})
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Zero(t, mailer.count())
}

func TestNotifyRegistration_DeliveryFailureNotRetried(t *testing.T) {
	mailer := &fakeMailer{err: &types.DeliveryError{Transport: "fake", Diagnostic: "535 5.7.8 authentication failed"}}
	d := NewDispatcher(mailer, "ops@example.com", nil)

	err := d.NotifyRegistration(context.Background(), Member{Username: "satoshi", Email: "s@example.com"})
	var derr *types.DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "535 5.7.8 authentication failed", derr.Diagnostic)
	assert.ErrorIs(t, err, types.ErrDelivery)
	assert.Equal(t, 1, mailer.count())
}

func TestNotifyRegistration_PlainErrorBecomesDeliveryError(t *testing.T) {
	cause := errors.New("connection reset by peer")
	mailer := &fakeMailer{err: cause}
	d := NewDispatcher(mailer, "ops@example.com", nil)

	err := d.NotifyRegistration(context.Background(), Member{Username: "satoshi", Email: "s@example.com"})
	var derr *types.DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "fake", derr.Transport)
	assert.Equal(t, cause.Error(), derr.Diagnostic)
	assert.ErrorIs(t, err, cause)
}
