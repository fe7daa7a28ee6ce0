package mailer

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

var ErrNoRecipients = errors.New("no recipients specified")

// Config holds the SMTP settings. Mail is disabled when Host is empty.
type Config struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT"     envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
	ReplyTo  string `env:"SMTP_REPLY_TO"`
}

// LoadConfig reads the SMTP_* environment variables.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse SMTP environment variables: %w", err)
	}
	return cfg, nil
}

// Enabled reports whether an SMTP host is configured.
func (c Config) Enabled() bool {
	return c.Host != ""
}

func (c Config) validate() error {
	switch {
	case c.Port <= 0:
		return errors.New("SMTP_PORT must be positive")
	case c.Username == "":
		return errors.New("missing SMTP_USERNAME environment variable")
	case c.Password == "":
		return errors.New("missing SMTP_PASSWORD environment variable")
	case c.From == "":
		return errors.New("missing SMTP_FROM environment variable")
	}
	return nil
}

// Email is a plain text message.
type Email struct {
	To      []string
	Subject string
	Body    string
}

// Mailer delivers plain text email over SMTP.
type Mailer struct {
	from    string
	replyTo string
	dialer  *gomail.Dialer
	logger  *zerolog.Logger
}

// New creates a Mailer. It fails when cfg is disabled or incomplete.
func New(cfg Config, logger *zerolog.Logger) (*Mailer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("missing SMTP_HOST environment variable")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Mailer{
		from:    cfg.From,
		replyTo: cfg.ReplyTo,
		dialer:  gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger:  logger,
	}, nil
}

// Send opens a connection and delivers one email.
func (m *Mailer) Send(email Email) error {
	msg, err := m.message(email)
	if err != nil {
		return err
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email %q: %w", email.Subject, err)
	}

	m.logger.Debug().Int("recipients", len(email.To)).Str("subject", email.Subject).Msg("email sent")
	return nil
}

// SendBulk delivers every email over a single connection. A failed message does not
// stop the rest; all failures are returned joined.
func (m *Mailer) SendBulk(emails []Email) error {
	if len(emails) == 0 {
		return nil
	}

	sender, err := m.dialer.Dial()
	if err != nil {
		return fmt.Errorf("failed to dial SMTP server: %w", err)
	}
	defer sender.Close()

	var errs []error
	for i, email := range emails {
		msg, err := m.message(email)
		if err == nil {
			err = gomail.Send(sender, msg)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("email %d: %w", i+1, err))
		}
	}

	m.logger.Debug().Int("emails", len(emails)).Int("failed", len(errs)).Msg("bulk email sent")
	return errors.Join(errs...)
}

func (m *Mailer) message(email Email) (*gomail.Message, error) {
	if len(email.To) == 0 {
		return nil, ErrNoRecipients
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email.To...)
	if m.replyTo != "" {
		msg.SetHeader("Reply-To", m.replyTo)
	}
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/plain", email.Body)

	return msg, nil
}
