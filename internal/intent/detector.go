// Package intent classifies inbound messages with deterministic,
// explainable heuristics: whether a message deserves an automated reply
// and whether it carries an appointment request.
package intent

import (
	"regexp"
	"strings"

	"github.com/smileagent/autoreply-engine/internal/models"
)

// Appointment is the detection result for an appointment request.
// Derived fresh per message, never cached or persisted on its own.
type Appointment struct {
	Detected   bool    `json:"detected"`
	Confidence float64 `json:"confidence"`
	RawDate    string  `json:"raw_date,omitempty"`
	RawTime    string  `json:"raw_time,omitempty"`
}

// Result is the full classification of one inbound message.
type Result struct {
	AutoReplyEligible bool        `json:"auto_reply_eligible"`
	Appointment       Appointment `json:"appointment"`
}

// Classifier is the pluggable detection strategy. The scheduler only
// depends on this interface so the heuristic can be tuned or replaced
// without touching orchestration.
type Classifier interface {
	Classify(msg models.InboxMessage) Result
}

// Confidence weights: a keyword match alone scores 0.4; finding a date
// and a time token add 0.3 each. The score is capped at 1.0.
const (
	keywordWeight = 0.4
	dateWeight    = 0.3
	timeWeight    = 0.3
)

// Sender markers that identify automated systems. Replying to these
// risks a reply loop, so they are always ineligible.
var automatedSenderMarkers = []string{"no-reply", "noreply", "automated", "notification"}

// Subject markers for out-of-office and auto-reply messages.
var autoReplySubjectMarkers = []string{"out of office", "auto-reply"}

// Italian booking vocabulary, matched against the lower-cased body.
var appointmentKeywords = []string{
	"appuntamento",
	"prenotare",
	"prenotazione",
	"vorrei venire",
	"disponibilità",
	"quando posso",
	"visita",
	"consulenza",
}

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\b`),
	// No trailing \b: it is an ASCII boundary and never matches after "ì"
	regexp.MustCompile(`\b(lunedì|martedì|mercoledì|giovedì|venerdì|sabato|domenica)`),
	regexp.MustCompile(`\b(domani|dopodomani|prossima settimana)\b`),
}

var timePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,2}:\d{2}\b`),
	regexp.MustCompile(`\b\d{1,2}\s?(am|pm)\b`),
	regexp.MustCompile(`\b(mattina|pomeriggio|sera)\b`),
}

// KeywordClassifier is the default heuristic strategy.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the default Classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify runs eligibility and appointment detection on one message.
// Pure function of its input.
func (c *KeywordClassifier) Classify(msg models.InboxMessage) Result {
	return Result{
		AutoReplyEligible: shouldAutoReply(msg),
		Appointment:       detectAppointment(msg.Body),
	}
}

// shouldAutoReply is a conservative allow-by-default rule: it only
// filters senders that look like other automated systems, not content.
func shouldAutoReply(msg models.InboxMessage) bool {
	from := strings.ToLower(msg.From)
	for _, marker := range automatedSenderMarkers {
		if strings.Contains(from, marker) {
			return false
		}
	}

	subject := strings.ToLower(msg.Subject)
	for _, marker := range autoReplySubjectMarkers {
		if strings.Contains(subject, marker) {
			return false
		}
	}

	return true
}

// detectAppointment matches the booking vocabulary, then scans for the
// first date and time tokens. No attempt is made to disambiguate
// multiple candidates.
func detectAppointment(body string) Appointment {
	text := strings.ToLower(body)

	matched := false
	for _, kw := range appointmentKeywords {
		if strings.Contains(text, kw) {
			matched = true
			break
		}
	}
	if !matched {
		return Appointment{}
	}

	rawDate := firstMatch(datePatterns, text)
	rawTime := firstMatch(timePatterns, text)

	confidence := keywordWeight
	if rawDate != "" {
		confidence += dateWeight
	}
	if rawTime != "" {
		confidence += timeWeight
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	return Appointment{
		Detected:   true,
		Confidence: confidence,
		RawDate:    rawDate,
		RawTime:    rawTime,
	}
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindString(text); m != "" {
			return m
		}
	}
	return ""
}
