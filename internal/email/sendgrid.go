package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ridewatch/onboarding/internal/reliability/circuitbreaker"
)

const defaultBaseURL = "https://api.sendgrid.com"

var (
	// ErrNotConfigured means no API key is set. Handlers translate this to
	// an upstream failure response rather than crashing the process.
	ErrNotConfigured = errors.New("email service not configured")

	// ErrUnavailable means the circuit breaker is rejecting sends
	ErrUnavailable = errors.New("email service temporarily unavailable")

	// ErrSendFailed means the provider rejected or failed the request
	ErrSendFailed = errors.New("failed to send email")
)

// Message is a single outbound email
type Message struct {
	ToEmail string
	Subject string
	Text    string
	HTML    string
	ReplyTo string
}

// Sender delivers messages through a mail provider
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// SendGridClient sends mail through the SendGrid v3 REST API. A circuit
// breaker guards the upstream so a provider outage fails fast instead of
// tying up request handlers.
type SendGridClient struct {
	apiKey     string
	fromEmail  string
	fromName   string
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewSendGridClient creates a SendGrid-backed sender. An empty apiKey is
// allowed; sends will fail with ErrNotConfigured until one is provided.
func NewSendGridClient(apiKey, fromEmail, fromName string, logger *slog.Logger) *SendGridClient {
	if logger == nil {
		logger = slog.Default()
	}

	breaker := circuitbreaker.New(5, 2, 30*time.Second)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warn("email circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})

	return &SendGridClient{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		fromName:  fromName,
		baseURL:   defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: breaker,
		logger:  logger,
	}
}

// SetBaseURL overrides the API endpoint, used by tests
func (c *SendGridClient) SetBaseURL(url string) {
	c.baseURL = url
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	ReplyTo          *sendGridAddress          `json:"reply_to,omitempty"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

// Send delivers one message via POST /v3/mail/send. SendGrid answers 202 on
// acceptance; 200 is also treated as success.
func (c *SendGridClient) Send(ctx context.Context, msg *Message) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}
	if !c.breaker.Allow() {
		return ErrUnavailable
	}

	payload := sendGridRequest{
		Personalizations: []sendGridPersonalization{
			{To: []sendGridAddress{{Email: msg.ToEmail}}},
		},
		From:    sendGridAddress{Email: c.fromEmail, Name: c.fromName},
		Subject: msg.Subject,
		Content: []sendGridContent{
			{Type: "text/plain", Value: msg.Text},
			{Type: "text/html", Value: msg.HTML},
		},
	}
	if msg.ReplyTo != "" {
		payload.ReplyTo = &sendGridAddress{Email: msg.ReplyTo}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		c.logger.Error("mail provider request failed", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		c.breaker.RecordFailure()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Error("mail provider rejected request",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(detail)),
		)
		return fmt.Errorf("%w: status %d", ErrSendFailed, resp.StatusCode)
	}

	c.breaker.RecordSuccess()
	c.logger.Info("email sent", slog.String("subject", msg.Subject))
	return nil
}
