// Package notify sends the newsletter subscription emails through SendGrid.
package notify

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// DefaultHost is the SendGrid API host.
const DefaultHost = "https://api.sendgrid.com"

const sendEndpoint = "/v3/mail/send"

var emailsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "loyverse_proxy_emails_total",
	Help: "Subscription emails by kind and result",
}, []string{"kind", "result"}) // kind: "admin", "confirmation"

var (
	// ErrInvalidEmail indicates the subscriber address could not be parsed
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrNotConfigured indicates the notifier has no API key or sender
	ErrNotConfigured = errors.New("email delivery not configured")
)

// EmailDeliveryError reports a message SendGrid did not accept.
type EmailDeliveryError struct {
	Kind       string
	StatusCode int
	Err        error
}

func (e *EmailDeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deliver %s email: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("deliver %s email: sendgrid status %d", e.Kind, e.StatusCode)
}

func (e *EmailDeliveryError) Unwrap() error {
	return e.Err
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, message *mail.SGMailV3) (*rest.Response, error)
}

// Config configures delivery.
type Config struct {
	APIKey string

	// Host overrides the SendGrid API host.
	Host string

	// AdminEmail receives the subscription notices.
	AdminEmail string

	// FromEmail is the verified sender of both messages.
	FromEmail string
	FromName  string

	// Timeout bounds one delivery (default 10s).
	Timeout time.Duration
}

// Notifier sends the subscription emails.
type Notifier struct {
	sender Sender
	from   *mail.Email
	admin  *mail.Email
	config Config
	logger zerolog.Logger
}

// New creates a notifier delivering through the SendGrid v3 API.
func New(cfg Config) (*Notifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrNotConfigured)
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	return NewWithSender(&sendGridSender{apiKey: cfg.APIKey, host: strings.TrimRight(cfg.Host, "/")}, cfg)
}

// NewWithSender creates a notifier with a custom sender.
func NewWithSender(sender Sender, cfg Config) (*Notifier, error) {
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("%w: sender address is required", ErrNotConfigured)
	}
	if cfg.AdminEmail == "" {
		cfg.AdminEmail = cfg.FromEmail
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Notifier{
		sender: sender,
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
		admin:  mail.NewEmail("", cfg.AdminEmail),
		config: cfg,
		logger: log.With().Str("component", "notify").Logger(),
	}, nil
}

// Subscribe sends the admin notice and then the subscriber confirmation.
// The first failed delivery aborts and is returned as *EmailDeliveryError.
func (n *Notifier) Subscribe(ctx context.Context, email string) error {
	address, err := ValidateEmail(email)
	if err != nil {
		return err
	}

	if err := n.deliver(ctx, "admin", BuildAdminNotice(n.from, n.admin, address)); err != nil {
		return err
	}
	if err := n.deliver(ctx, "confirmation", BuildConfirmation(n.from, address)); err != nil {
		return err
	}

	n.logger.Info().Str("email", address).Msg("Subscription emails sent")
	return nil
}

func (n *Notifier) deliver(ctx context.Context, kind string, message *mail.SGMailV3) error {
	ctx, cancel := context.WithTimeout(ctx, n.config.Timeout)
	defer cancel()

	response, err := n.sender.Send(ctx, message)
	if err != nil {
		emailsSentTotal.WithLabelValues(kind, "error").Inc()
		n.logger.Error().Err(err).Str("kind", kind).Msg("Failed to send email")
		return &EmailDeliveryError{Kind: kind, Err: err}
	}

	if response.StatusCode >= 400 {
		emailsSentTotal.WithLabelValues(kind, "rejected").Inc()
		n.logger.Error().
			Int("status", response.StatusCode).
			Str("kind", kind).
			Str("body", response.Body).
			Msg("SendGrid returned error")
		return &EmailDeliveryError{Kind: kind, StatusCode: response.StatusCode}
	}

	emailsSentTotal.WithLabelValues(kind, "sent").Inc()
	return nil
}

// ValidateEmail trims and parses a bare address.
func ValidateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEmail)
	}
	parsed, err := netmail.ParseAddress(email)
	if err != nil || parsed.Address != email {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return parsed.Address, nil
}

// sendGridSender posts messages to the v3 mail send endpoint.
type sendGridSender struct {
	apiKey string
	host   string
}

func (s *sendGridSender) Send(ctx context.Context, message *mail.SGMailV3) (*rest.Response, error) {
	request := sendgrid.GetRequest(s.apiKey, sendEndpoint, s.host)
	request.Method = rest.Post
	request.Body = mail.GetRequestBody(message)
	return sendgrid.MakeRequestWithContext(ctx, request)
}
