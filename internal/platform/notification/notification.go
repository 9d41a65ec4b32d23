// Package notification delivers outbound email. Templates are rendered with
// {{key}} substitution and handed to an EmailSender; delivery is best effort.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Sender Interfaces
// ---------------------------------------------------------------------------

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template IDs used by the donation workflows.
const (
	TplDonationRequest = "donation-request"
	TplBulkRequest     = "bulk-request"
	TplDonationUsed    = "donation-used"
	TplRequestApproved = "request-approved"
)

// Template defines a reusable email template.
type Template struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages email templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TplDonationRequest,
			Subject: "Urgent Blood Donation Request: {{blood_type}}",
			Body: "Hello {{name}},\n\nWe have an urgent need for {{blood_type}} blood.\n\nMessage: {{message}}\n\n" +
				"Please login to your dashboard to view details and accept.\n\nThank you,\nLifeLink Team",
		},
		{
			ID:      TplBulkRequest,
			Subject: "New Blood Drive Alert: {{type}}",
			Body: "Hello {{name}},\n\nA new {{type}} has been scheduled near you.\n\nMessage: {{message}}\n\n" +
				"Please check your dashboard for location and more details.\n\nThank you,\nLifeLink Team",
		},
		{
			ID:      TplDonationUsed,
			Subject: "Your blood donation was used",
			Body: "Hello {{name}},\n\nA unit you donated has been issued to {{hospital}}. " +
				"Your certificate is available on your dashboard.\n\nThank you,\nLifeLink Team",
		},
		{
			ID:      TplRequestApproved,
			Subject: "Blood request approved",
			Body:    "Hello {{name}},\n\nYour request for {{units}} unit(s) of {{blood_type}} has been approved.\n\nLifeLink Team",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// HTTPEmailSender posts messages to a transactional email API.
type HTTPEmailSender struct {
	client *resty.Client
	from   string
}

type emailPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// NewHTTPEmailSender builds a sender for baseURL. The API key is sent as a
// bearer token.
func NewHTTPEmailSender(baseURL, apiKey, from string) *HTTPEmailSender {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HTTPEmailSender{client: client, from: from}
}

// SendEmail delivers one message. Non-2xx responses are errors.
func (s *HTTPEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(emailPayload{From: s.from, To: to, Subject: subject, Text: body}).
		Post("/send")
	if err != nil {
		return fmt.Errorf("email api: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("email api returned %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

// LogEmailSender writes messages to the log instead of delivering them. It is
// used when no email API is configured.
type LogEmailSender struct {
	Logger zerolog.Logger
}

func (s LogEmailSender) SendEmail(_ context.Context, to, subject, _ string) error {
	s.Logger.Info().Str("to", to).Str("subject", subject).Msg("email (not delivered, no EMAIL_API_URL)")
	return nil
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Mailer
// ---------------------------------------------------------------------------

// Mailer renders a template and sends it. Failures are logged and swallowed:
// a lost email never fails the request that triggered it.
type Mailer struct {
	sender    EmailSender
	templates *TemplateEngine
	logger    zerolog.Logger
}

// NewMailer constructs a Mailer. A nil sender falls back to LogEmailSender.
func NewMailer(sender EmailSender, tpl *TemplateEngine, logger zerolog.Logger) *Mailer {
	if sender == nil {
		sender = LogEmailSender{Logger: logger}
	}
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	return &Mailer{sender: sender, templates: tpl, logger: logger}
}

// Send renders templateID for one recipient. It reports whether the message
// was handed off successfully.
func (m *Mailer) Send(ctx context.Context, templateID, to string, data map[string]string) bool {
	if m == nil || to == "" {
		return false
	}
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		m.logger.Error().Err(err).Str("template", templateID).Msg("render email")
		return false
	}
	if err := m.sender.SendEmail(ctx, to, subject, body); err != nil {
		m.logger.Warn().Err(err).Str("to", to).Str("template", templateID).Msg("email delivery failed")
		return false
	}
	return true
}
