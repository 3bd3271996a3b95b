// FILE: internal/alert/alert.go
// Package alert defines the AlertSink contract (spec.md §6) plus a
// trivial logging sink and a generic webhook sink. Telegram/Slack/
// Sentry-specific transports are explicitly out of scope (spec.md §1);
// grounded on the teacher's postSlack (trader.go) — a single free
// function that posts a string to a webhook — generalized into a typed
// Emit(Alert) interface so no transport-specific code lives in the core.
package alert

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// Severity mirrors spec.md §6's AlertSink severity enum.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Alert is the payload Emit receives.
type Alert struct {
	Severity Severity
	Title    string
	Message  string
	Tags     []string
	Metadata map[string]string
	Time     time.Time
}

// Sink is spec.md §6's AlertSink interface.
type Sink interface {
	Emit(a Alert)
}

// LogSink writes one line per alert via the standard logger, matching
// the teacher's log.Printf convention throughout trader.go/live.go.
type LogSink struct{}

func (LogSink) Emit(a Alert) {
	log.Printf("alert severity=%s title=%q message=%q tags=%v", a.Severity, a.Title, a.Message, a.Tags)
}

// WebhookSink posts a generic JSON body to a configured URL — the same
// shape as the teacher's postSlack, generalized away from Slack's
// specific payload format to a plain {severity,title,message,tags,
// metadata} JSON document any receiver (Slack, a custom collector, etc)
// can consume. Rate-limiting/deduplication is explicitly outside the
// core per spec.md §6 ("Sinks are rate-limited and deduplicated outside
// the core") — this sink does neither.
type WebhookSink struct {
	URL string
	hc  *http.Client
}

func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{URL: url, hc: &http.Client{Timeout: 5 * time.Second}}
}

func (w *WebhookSink) Emit(a Alert) {
	if w.URL == "" {
		return
	}
	body, err := json.Marshal(a)
	if err != nil {
		log.Printf("alert webhook marshal error: %v", err)
		return
	}
	resp, err := w.hc.Post(w.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("alert webhook post error: %v", err)
		return
	}
	defer resp.Body.Close()
}
