// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ideaboard Contributors

// Package mail delivers verification codes to users.
package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
	"gopkg.in/gomail.v2"
)

// Mailer sends codes. Implementations must not log the code.
type Mailer interface {
	SendResetCode(ctx context.Context, to, username, code string) error
	SendVerificationCode(ctx context.Context, to, username, code string) error
}

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Product is the name shown in subjects and bodies.
	Product string
}

// sender is satisfied by *gomail.Dialer.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer sends codes over SMTP.
type SMTPMailer struct {
	cfg    SMTPConfig
	sender sender
	logger *slog.Logger
}

// NewSMTPMailer creates an SMTPMailer. Host and From are required.
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, oops.Code("MAIL_INVALID_CONFIG").Errorf("smtp host and from address are required")
	}
	if cfg.Product == "" {
		cfg.Product = "Ideaboard"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPMailer{
		cfg:    cfg,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger,
	}, nil
}

// SendResetCode sends a password reset code.
func (m *SMTPMailer) SendResetCode(ctx context.Context, to, username, code string) error {
	subject := fmt.Sprintf("[%s] Password reset code", m.cfg.Product)
	body := fmt.Sprintf(`Hello %s,

Use this code to reset your %s password:

    %s

If you did not ask for a reset you can ignore this message.
`, username, m.cfg.Product, code)
	return m.send(ctx, to, subject, body, "password reset mail sent")
}

// SendVerificationCode sends an email verification code.
func (m *SMTPMailer) SendVerificationCode(ctx context.Context, to, username, code string) error {
	subject := fmt.Sprintf("[%s] Confirm your email address", m.cfg.Product)
	body := fmt.Sprintf(`Hello %s,

Use this code to confirm this address for your %s account:

    %s
`, username, m.cfg.Product, code)
	return m.send(ctx, to, subject, body, "verification mail sent")
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, body, logMsg string) error {
	if to == "" {
		return oops.Code("MAIL_NO_RECIPIENT").Errorf("empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("to", to).Wrap(err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	// DialAndSend takes no context; a stalled exchange is abandoned at the
	// deadline and left to finish on its own.
	result := make(chan error, 1)
	go func() { result <- m.sender.DialAndSend(msg) }()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("operation", "dial and send").
			With("to", to).
			Wrap(err)
	}
	m.logger.InfoContext(ctx, logMsg, "to", to)
	return nil
}

// LogMailer stands in when SMTP is not configured. It records that a
// message would have been sent, without the code.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// SendResetCode logs the delivery.
func (m *LogMailer) SendResetCode(ctx context.Context, to, username, _ string) error {
	m.logger.WarnContext(ctx, "smtp disabled, reset code not delivered", "to", to, "username", username)
	return nil
}

// SendVerificationCode logs the delivery.
func (m *LogMailer) SendVerificationCode(ctx context.Context, to, username, _ string) error {
	m.logger.WarnContext(ctx, "smtp disabled, verification code not delivered", "to", to, "username", username)
	return nil
}

var (
	_ Mailer = (*SMTPMailer)(nil)
	_ Mailer = (*LogMailer)(nil)
)
