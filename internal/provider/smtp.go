package provider

import (
	"context"
	"fmt"
	"net/smtp"
)

// SMTPEmail sends plain-text mail over authenticated SMTP.
type SMTPEmail struct {
	host     string
	port     string
	from     string
	password string
	subject  string
}

func NewSMTPEmail(host, port, from, password, subject string) *SMTPEmail {
	if subject == "" {
		subject = "Prayer Time Reminder"
	}
	return &SMTPEmail{host: host, port: port, from: from, password: password, subject: subject}
}

func (e *SMTPEmail) Send(ctx context.Context, to, body string) (string, error) {
	// net/smtp has no context support; cancellation is handled by the
	// per-send timeout in the delivery engine closing the deadline.
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-version: 1.0;\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s", e.from, to, e.subject, body))
	auth := smtp.PlainAuth("", e.from, e.password, e.host)
	if err := smtp.SendMail(e.host+":"+e.port, auth, e.from, []string{to}, msg); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return "", nil
}
