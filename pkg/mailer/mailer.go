// Package mailer delivers transactional notifications such as registration
// decisions and password changes.
package mailer

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/pkg/config"
)

// ErrNoRecipients is returned for messages without a destination.
var ErrNoRecipients = errors.New("mailer: message has no recipients")

// Mailer sends a single message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a plain text mail with an optional HTML alternative.
type Message struct {
	To      []mail.Address
	Subject string
	Text    string
	HTML    string
}

func (m Message) validate() error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("mailer: subject required")
	}
	if m.Text == "" && m.HTML == "" {
		return errors.New("mailer: content required")
	}
	return nil
}

// New selects the transport configured by MAIL_DRIVER.
func New(cfg config.MailConfig, logger *zap.Logger) Mailer {
	from := mail.Address{Name: cfg.FromName, Address: cfg.FromAddress}
	if cfg.Driver == config.MailDriverSendgrid && cfg.SendgridAPIKey != "" {
		return NewSendgridMailer(cfg.SendgridAPIKey, from, logger)
	}
	if cfg.Driver == config.MailDriverSendgrid && logger != nil {
		logger.Warn("sendgrid selected without api key, falling back to log mailer")
	}
	return NewLogMailer(from, logger)
}

// LogMailer writes messages to the application log instead of delivering them.
type LogMailer struct {
	from   mail.Address
	logger *zap.Logger
}

// NewLogMailer constructs a log-backed mailer.
func NewLogMailer(from mail.Address, logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{from: from, logger: logger}
}

// Send logs the message.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	m.logger.Info("mail",
		zap.String("from", m.from.String()),
		zap.String("to", joinAddresses(msg.To)),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text),
	)
	return nil
}

func joinAddresses(addrs []mail.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}
