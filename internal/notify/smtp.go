package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/stakeport/stakeport/pkg/types"
)

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	// StartTLS upgrades a plain connection; otherwise TLS is negotiated on
	// connect (submissions port 465).
	StartTLS  bool
	Timeout   time.Duration
	TLSConfig *tls.Config
}

// SMTPMailer submits mail to an authenticated SMTP relay over TLS.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer creates a mailer for cfg.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Name() string { return "smtp" }

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := m.send(ctx, msg); err != nil {
		return &types.DeliveryError{Transport: m.Name(), Diagnostic: diagnostic(err), Err: err}
	}
	return nil
}

func (m *SMTPMailer) send(ctx context.Context, msg Message) error {
	if m.cfg.Host == "" {
		return errors.New("smtp host not configured")
	}
	if len(msg.To) == 0 {
		return errors.New("no recipients")
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	tlsCfg := m.tlsConfig()

	var (
		conn net.Conn
		err  error
	)
	if m.cfg.StartTLS {
		conn, err = (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = (&tls.Dialer{Config: tlsCfg}).DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("greeting: %w", err)
	}
	defer c.Close()

	if m.cfg.StartTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return errors.New("relay does not offer STARTTLS")
		}
		if err := c.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range msg.To {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(m.compose(msg)); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("end data: %w", err)
	}
	return c.Quit()
}

func (m *SMTPMailer) tlsConfig() *tls.Config {
	if m.cfg.TLSConfig != nil {
		cfg := m.cfg.TLSConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = m.cfg.Host
		}
		return cfg
	}
	return &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
}

func (m *SMTPMailer) compose(msg Message) []byte {
	var buf bytes.Buffer
	from := m.cfg.From
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", m.cfg.FromName), m.cfg.From)
	}
	header := textproto.MIMEHeader{}
	header.Set("From", from)
	for _, to := range msg.To {
		header.Add("To", to)
	}
	header.Set("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header.Set("Date", time.Now().Format(time.RFC1123Z))
	header.Set("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), m.cfg.Host))
	header.Set("MIME-Version", "1.0")
	header.Set("Content-Type", `text/html; charset="utf-8"`)
	header.Set("Content-Transfer-Encoding", "base64")
	for k, v := range msg.Headers {
		header.Set(k, v)
	}

	for _, k := range []string{"From", "To", "Subject", "Date", "Message-ID", "MIME-Version", "Content-Type", "Content-Transfer-Encoding"} {
		for _, v := range header.Values(k) {
			fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
		}
		delete(header, k)
	}
	for k, vs := range header {
		for _, v := range vs {
			fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
		}
	}
	buf.WriteString("\r\n")

	encoded := base64.StdEncoding.EncodeToString([]byte(msg.HTML))
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76] + "\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded + "\r\n")
	return buf.Bytes()
}

// diagnostic prefers the relay's own reply over a wrapped Go error string.
func diagnostic(err error) string {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return fmt.Sprintf("%d %s", tpErr.Code, tpErr.Msg)
	}
	return err.Error()
}
