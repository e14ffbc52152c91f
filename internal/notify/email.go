package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/stackport-labs/stackport-go/internal/platform/env"
)

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func EmailConfigFromEnv() (EmailConfig, error) {
	port, err := env.Int("SMTP_PORT", 587)
	if err != nil {
		return EmailConfig{}, err
	}
	cfg := EmailConfig{
		Host:     env.String("SMTP_HOST", ""),
		Port:     port,
		Username: env.String("SMTP_USERNAME", ""),
		Password: env.String("SMTP_PASSWORD", ""),
		From:     env.String("SMTP_FROM", "stackport@example.com"),
	}
	return cfg, nil
}

// Configured reports whether the channel should be wired at all. An empty
// host means email notifications are disabled, not misconfigured.
func (c EmailConfig) Configured() bool {
	return strings.TrimSpace(c.Host) != ""
}

func (c EmailConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("SMTP_HOST is required")
	}
	if c.Port <= 0 {
		return errors.New("SMTP_PORT must be positive")
	}
	if strings.TrimSpace(c.From) == "" {
		return errors.New("SMTP_FROM is required")
	}
	return nil
}

// EmailNotifier delivers plain-text notifications over SMTP.
type EmailNotifier struct {
	cfg  EmailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailNotifier(cfg EmailConfig) (*EmailNotifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &EmailNotifier{cfg: cfg, send: smtp.SendMail}, nil
}

func (n *EmailNotifier) Send(ctx context.Context, msg Message) error {
	if n == nil {
		return errors.New("email notifier not initialized")
	}
	if len(msg.To) == 0 {
		return errors.New("message has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if strings.TrimSpace(n.cfg.Username) != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	return n.send(addr, auth, n.cfg.From, msg.To, renderEmail(n.cfg.From, msg))
}

func renderEmail(from string, msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	for _, fact := range msg.Facts {
		fmt.Fprintf(&b, "%s: %s\r\n", fact.Name, fact.Value)
	}
	if strings.TrimSpace(msg.LinkURL) != "" {
		fmt.Fprintf(&b, "\r\n%s\r\n", msg.LinkURL)
	}
	return []byte(b.String())
}
