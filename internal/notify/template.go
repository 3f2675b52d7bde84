package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// Placeholder replaces optional member fields that were left empty.
const Placeholder = "Not provided"

// Member is the registration payload submitted by a new platform member.
type Member struct {
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	Referrer     string    `json:"referrer,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	IP           string    `json:"ip,omitempty"`
	Wallet       string    `json:"wallet,omitempty"`
	RegisteredAt time.Time `json:"registered_at,omitempty"`
}

type registrationView struct {
	Username     string
	Email        string
	FirstName    string
	LastName     string
	Referrer     string
	Phone        string
	IP           string
	Wallet       string
	RegisteredAt string
}

var registrationTmpl = template.Must(template.New("registration").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>New member registration</title></head>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2 style="color: #f0b90b;">New member registration</h2>
  <table cellpadding="6" cellspacing="0" border="1" style="border-collapse: collapse;">
    <tr><th align="left">Username</th><td>{{.Username}}</td></tr>
    <tr><th align="left">Email</th><td>{{.Email}}</td></tr>
    <tr><th align="left">First name</th><td>{{.FirstName}}</td></tr>
    <tr><th align="left">Last name</th><td>{{.LastName}}</td></tr>
    <tr><th align="left">Referrer</th><td>{{.Referrer}}</td></tr>
    <tr><th align="left">Phone</th><td>{{.Phone}}</td></tr>
    <tr><th align="left">IP address</th><td>{{.IP}}</td></tr>
    {{- if .Wallet}}
    <tr><th align="left">Wallet</th><td>{{.Wallet}}</td></tr>
    {{- end}}
    <tr><th align="left">Registered at</th><td>{{.RegisteredAt}}</td></tr>
  </table>
</body>
</html>
`))

func orPlaceholder(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return Placeholder
	}
	return s
}

// RenderRegistration builds the subject and HTML body for a registration.
// Optional fields that are empty render as Placeholder.
func RenderRegistration(m Member) (subject, body string, err error) {
	at := m.RegisteredAt
	if at.IsZero() {
		at = time.Now()
	}
	view := registrationView{
		Username:     strings.TrimSpace(m.Username),
		Email:        strings.TrimSpace(m.Email),
		FirstName:    orPlaceholder(m.FirstName),
		LastName:     orPlaceholder(m.LastName),
		Referrer:     orPlaceholder(m.Referrer),
		Phone:        orPlaceholder(m.Phone),
		IP:           orPlaceholder(m.IP),
		Wallet:       strings.TrimSpace(m.Wallet),
		RegisteredAt: at.UTC().Format(time.RFC1123),
	}

	var buf bytes.Buffer
	if err := registrationTmpl.Execute(&buf, view); err != nil {
		return "", "", fmt.Errorf("render registration email: %w", err)
	}
	return "New member registration: " + view.Username, buf.String(), nil
}
