package notification

import (
	"fmt"
	"time"
)

// CrisisAlert carries what the on-call clinician needs to find the
// assessment. It never includes symptom text.
type CrisisAlert struct {
	AssessmentID  string
	Urgency       string
	AggregateRisk string
	ActorID       string
	RequestID     string
	At            time.Time
}

func (a CrisisAlert) data() map[string]string {
	return map[string]string{
		"assessment_id": a.AssessmentID,
		"urgency":       a.Urgency,
		"risk":          a.AggregateRisk,
		"actor_id":      a.ActorID,
		"request_id":    a.RequestID,
		"time":          a.At.UTC().Format(time.RFC3339),
	}
}

// CrisisPager pages the configured on-call recipients.
type CrisisPager struct {
	dispatcher *Dispatcher
	templates  *TemplateEngine
	email      string
	sms        string
}

// NewCrisisPager returns a pager for the given recipients. An empty recipient
// disables that channel.
func NewCrisisPager(d *Dispatcher, templates *TemplateEngine, email, sms string) *CrisisPager {
	return &CrisisPager{dispatcher: d, templates: templates, email: email, sms: sms}
}

// Page enqueues one alert per configured channel and returns how many were
// accepted. It does not wait for delivery.
func (p *CrisisPager) Page(alert CrisisAlert) (int, error) {
	if alert.At.IsZero() {
		alert.At = time.Now()
	}
	targets := []struct {
		template  string
		recipient string
	}{
		{TemplateCrisisAlert, p.email},
		{TemplateCrisisAlertSMS, p.sms},
	}

	accepted := 0
	for _, t := range targets {
		if t.recipient == "" {
			continue
		}
		n, err := p.templates.Render(t.template, alert.data())
		if err != nil {
			return accepted, fmt.Errorf("render %s: %w", t.template, err)
		}
		n.Recipient = t.recipient
		n.Priority = "stat"
		n.Metadata = map[string]string{"assessment_id": alert.AssessmentID}
		if p.dispatcher.Enqueue(n) {
			accepted++
		}
	}
	return accepted, nil
}
