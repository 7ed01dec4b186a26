// Package notification renders and delivers out-of-band alerts over email and
// SMS. Delivery is asynchronous: callers enqueue and return immediately.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/ehr/assessment/internal/platform/telemetry"
)

// NotificationType is the delivery channel.
type NotificationType string

const (
	TypeEmail NotificationType = "email"
	TypeSMS   NotificationType = "sms"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Notification is a single outbound message.
type Notification struct {
	ID         string            `json:"id"`
	Type       NotificationType  `json:"type"`
	Recipient  string            `json:"recipient"`
	Subject    string            `json:"subject,omitempty"`
	Body       string            `json:"body"`
	TemplateID string            `json:"template_id,omitempty"`
	Priority   string            `json:"priority"`
	Status     string            `json:"status"`
	Attempts   int               `json:"attempts"`
	CreatedAt  time.Time         `json:"created_at"`
	SentAt     *time.Time        `json:"sent_at,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// LogSender writes messages to the log instead of delivering them. It is the
// default when no gateway is configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "notification").Logger()}
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.logger.Warn().Str("channel", "email").Str("to", to).Str("subject", subject).Str("body", body).Msg("notification")
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Warn().Str("channel", "sms").Str("to", to).Str("body", body).Msg("notification")
	return nil
}

// Template is a message with {{key}} placeholders.
type Template struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Subject string           `json:"subject"`
	Body    string           `json:"body"`
	Type    NotificationType `json:"type"`
}

const (
	TemplateCrisisAlert    = "crisis-alert"
	TemplateCrisisAlertSMS = "crisis-alert-sms"
)

type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine returns an engine with the crisis templates registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.RegisterTemplate(Template{
		ID:      TemplateCrisisAlert,
		Name:    "Crisis Alert",
		Subject: "[{{urgency}}] Crisis protocol activated for assessment {{assessment_id}}",
		Body: "Crisis protocol activated at {{time}}.\n" +
			"Assessment: {{assessment_id}}\nUrgency: {{urgency}}\nAggregate risk: {{risk}}\n" +
			"Requested by: {{actor_id}}\nRequest: {{request_id}}\n" +
			"Review the assessment immediately.",
		Type: TypeEmail,
	})
	e.RegisterTemplate(Template{
		ID:   TemplateCrisisAlertSMS,
		Name: "Crisis Alert (SMS)",
		Body: "CRISIS {{urgency}}: assessment {{assessment_id}} risk {{risk}}. Review now.",
		Type: TypeSMS,
	})
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render substitutes data into the template. Placeholders without data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (*Notification, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("template %q not found", templateID)
	}

	subject, body := t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return &Notification{
		Type:       t.Type,
		Subject:    subject,
		Body:       body,
		TemplateID: t.ID,
	}, nil
}

// Manager delivers notifications with bounded retries and keeps the most
// recent ones for inspection.
type Manager struct {
	emailSender EmailSender
	smsSender   SMSSender
	metrics     telemetry.Recorder
	maxRetries  uint64
	backoff     time.Duration

	mu     sync.Mutex
	recent []*Notification
	keep   int
}

func NewManager(email EmailSender, sms SMSSender, metrics telemetry.Recorder) *Manager {
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	return &Manager{
		emailSender: email,
		smsSender:   sms,
		metrics:     metrics,
		maxRetries:  2,
		backoff:     250 * time.Millisecond,
		keep:        100,
	}
}

// Send delivers n, retrying transient failures, and records the outcome on n.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.Status = StatusPending

	send := func(ctx context.Context) error {
		n.Attempts++
		var err error
		switch n.Type {
		case TypeEmail:
			if m.emailSender == nil {
				return fmt.Errorf("no email sender configured")
			}
			err = m.emailSender.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
		case TypeSMS:
			if m.smsSender == nil {
				return fmt.Errorf("no sms sender configured")
			}
			err = m.smsSender.SendSMS(ctx, n.Recipient, n.Body)
		default:
			return fmt.Errorf("unsupported notification type: %s", n.Type)
		}
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}

	err := retry.Do(ctx, retry.WithMaxRetries(m.maxRetries, retry.NewFibonacci(m.backoff)), send)
	if err != nil {
		n.Status = StatusFailed
		n.Error = err.Error()
	} else {
		n.Status = StatusSent
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}
	m.metrics.Inc(telemetry.NotificationsTotal, "channel", string(n.Type), "status", n.Status)
	m.remember(n)
	return err
}

func (m *Manager) remember(n *Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent = append(m.recent, n)
	if len(m.recent) > m.keep {
		m.recent = m.recent[len(m.recent)-m.keep:]
	}
}

// Recent returns the most recently delivered or failed notifications, oldest first.
func (m *Manager) Recent() []*Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Notification, len(m.recent))
	copy(out, m.recent)
	return out
}

// Stats counts recent notifications by status.
func (m *Manager) Stats() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := make(map[string]int)
	for _, n := range m.recent {
		stats[n.Status]++
	}
	return stats
}
