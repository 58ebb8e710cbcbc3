// Package mail sends transactional email over SMTP with implicit TLS.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net/smtp"
)

var resetTemplate = template.Must(template.New("reset").Parse(`<html><body>
<p>Hi {{.FirstName}} {{.LastName}},</p>
<p>We have reset your password. Use the following credentials to sign in:</p>
<p>username: {{.Username}}</p>
<p>password: {{.OneTimePassword}}</p>
<p>Please change this password after your next login. Do not reply to this email.</p>
</body></html>`))

type resetParams struct {
	FirstName       string
	LastName        string
	Username        string
	OneTimePassword string
}

// SMTPSender delivers templated mail through one SMTP server.
type SMTPSender struct {
	host   string
	port   string
	user   string
	pass   string
	sender string
}

// NewSMTPSender creates a sender. The connection is dialed per message.
func NewSMTPSender(host, port, user, pass, sender string) *SMTPSender {
	return &SMTPSender{host: host, port: port, user: user, pass: pass, sender: sender}
}

// SendPasswordReset renders and delivers the reset email carrying the
// one-time password.
func (s *SMTPSender) SendPasswordReset(ctx context.Context, to, firstName, lastName, username, oneTimePassword string) error {
	var body bytes.Buffer
	err := resetTemplate.Execute(&body, resetParams{
		FirstName:       firstName,
		LastName:        lastName,
		Username:        username,
		OneTimePassword: oneTimePassword,
	})
	if err != nil {
		return fmt.Errorf("render reset email: %w", err)
	}
	return s.send(to, "Reset your password", body.String())
}

func (s *SMTPSender) send(to, subject, body string) error {
	msg := []byte(
		fmt.Sprintf("From: %s\r\n", s.sender) +
			fmt.Sprintf("To: %s\r\n", to) +
			fmt.Sprintf("Subject: %s\r\n", subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=\"utf-8\"\r\n" +
			"\r\n" +
			body,
	)

	addr := s.host + ":" + s.port

	// Implicit TLS (port 465).
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.host})
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Quit()

	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}

	if err := client.Mail(s.sender); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}

	return nil
}
