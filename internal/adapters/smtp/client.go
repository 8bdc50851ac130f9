package smtp

import (
	"context"
	"fmt"
	"time"

	mail "github.com/wneessen/go-mail"

	"github.com/nourx/mailer/internal/config"
	"github.com/nourx/mailer/internal/domain"
)

// Client wraps a single SMTP account. Each Send is exactly one delivery
// attempt; the outbox owns retries.
type Client struct {
	client    *mail.Client
	fromEmail string
	fromName  string
}

func NewClient(cfg config.SMTP) (*Client, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(time.Duration(cfg.TimeoutSec) * time.Second),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &Client{
		client:    client,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}, nil
}

func (c *Client) Send(ctx context.Context, email domain.RenderedEmail) error {
	msg, err := c.buildMessage(email)
	if err != nil {
		return err
	}

	if err := c.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send to %s failed: %w", email.ToEmail, err)
	}
	return nil
}

// TestConnection dials and closes the transport. Used as the boot self-test
// so an undeliverable configuration fails fast instead of silently queuing.
func (c *Client) TestConnection(ctx context.Context) error {
	if err := c.client.DialWithContext(ctx); err != nil {
		return fmt.Errorf("smtp connection test failed: %w", err)
	}
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("smtp connection close failed: %w", err)
	}
	return nil
}

func (c *Client) buildMessage(email domain.RenderedEmail) (*mail.Msg, error) {
	msg := mail.NewMsg()

	if err := msg.FromFormat(c.fromName, c.fromEmail); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", c.fromEmail, err)
	}

	if email.ToName != "" {
		if err := msg.AddToFormat(email.ToName, email.ToEmail); err != nil {
			return nil, fmt.Errorf("invalid recipient %q: %w", email.ToEmail, err)
		}
	} else {
		if err := msg.To(email.ToEmail); err != nil {
			return nil, fmt.Errorf("invalid recipient %q: %w", email.ToEmail, err)
		}
	}

	msg.Subject(email.Subject)
	msg.SetBodyString(mail.TypeTextHTML, email.HTMLContent)
	if email.TextContent != "" {
		msg.AddAlternativeString(mail.TypeTextPlain, email.TextContent)
	}

	return msg, nil
}
