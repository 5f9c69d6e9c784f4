package intent

import (
	"testing"

	"github.com/smileagent/autoreply-engine/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestClassify_FullAppointmentRequest(t *testing.T) {
	c := NewKeywordClassifier()

	result := c.Classify(models.InboxMessage{
		From:    "Mario Rossi <mario@example.com>",
		Subject: "Richiesta visita",
		Body:    "Buongiorno, vorrei prenotare una visita il 15/03/2025 alle 14:30. Grazie.",
	})

	assert.True(t, result.AutoReplyEligible)
	assert.True(t, result.Appointment.Detected)
	assert.Equal(t, 1.0, result.Appointment.Confidence)
	assert.Equal(t, "15/03/2025", result.Appointment.RawDate)
	assert.Equal(t, "14:30", result.Appointment.RawTime)
}

func TestClassify_KeywordOnly(t *testing.T) {
	c := NewKeywordClassifier()

	result := c.Classify(models.InboxMessage{
		From: "paziente@example.com",
		Body: "Vorrei un appuntamento per una pulizia dei denti.",
	})

	assert.True(t, result.Appointment.Detected)
	assert.InDelta(t, 0.4, result.Appointment.Confidence, 0.001)
	assert.Empty(t, result.Appointment.RawDate)
	assert.Empty(t, result.Appointment.RawTime)
}

func TestClassify_KeywordAndDate(t *testing.T) {
	c := NewKeywordClassifier()

	result := c.Classify(models.InboxMessage{
		From: "paziente@example.com",
		Body: "Avete disponibilità lunedì?",
	})

	assert.True(t, result.Appointment.Detected)
	assert.InDelta(t, 0.7, result.Appointment.Confidence, 0.001)
	assert.Equal(t, "lunedì", result.Appointment.RawDate)
}

func TestClassify_RelativeDate(t *testing.T) {
	c := NewKeywordClassifier()

	result := c.Classify(models.InboxMessage{
		From: "paziente@example.com",
		Body: "Posso prenotare per domani pomeriggio?",
	})

	assert.True(t, result.Appointment.Detected)
	assert.Equal(t, "domani", result.Appointment.RawDate)
	assert.Equal(t, "pomeriggio", result.Appointment.RawTime)
	assert.Equal(t, 1.0, result.Appointment.Confidence)
}

func TestClassify_NoKeywordNoDetection(t *testing.T) {
	c := NewKeywordClassifier()

	// A date alone is not an appointment request
	result := c.Classify(models.InboxMessage{
		From: "paziente@example.com",
		Body: "Vi scrivo in merito alla fattura del 15/03/2025.",
	})

	assert.False(t, result.Appointment.Detected)
	assert.Equal(t, 0.0, result.Appointment.Confidence)
}

func TestClassify_NoReplySenderIneligible(t *testing.T) {
	c := NewKeywordClassifier()

	result := c.Classify(models.InboxMessage{
		From: "no-reply@bank.example.com",
		Body: "Vorrei prenotare una visita.",
	})

	assert.False(t, result.AutoReplyEligible)
	// Detection still runs independently of eligibility
	assert.True(t, result.Appointment.Detected)
}

func TestClassify_AutomatedSenderVariants(t *testing.T) {
	c := NewKeywordClassifier()

	for _, from := range []string{
		"noreply@example.com",
		"Automated System <automated@example.com>",
		"notification@example.com",
	} {
		result := c.Classify(models.InboxMessage{From: from, Body: "ciao"})
		assert.False(t, result.AutoReplyEligible, "sender %q should be ineligible", from)
	}
}

func TestClassify_OutOfOfficeSubjectIneligible(t *testing.T) {
	c := NewKeywordClassifier()

	result := c.Classify(models.InboxMessage{
		From:    "mario@example.com",
		Subject: "Out of Office: ferie",
		Body:    "Sono in ferie fino al 20.",
	})

	assert.False(t, result.AutoReplyEligible)
}

func TestClassify_EligibleByDefault(t *testing.T) {
	c := NewKeywordClassifier()

	result := c.Classify(models.InboxMessage{
		From:    "Mario Rossi <mario@example.com>",
		Subject: "Domanda",
		Body:    "Quanto costa una pulizia?",
	})

	assert.True(t, result.AutoReplyEligible)
}

func TestClassify_CaseInsensitive(t *testing.T) {
	c := NewKeywordClassifier()

	result := c.Classify(models.InboxMessage{
		From: "mario@example.com",
		Body: "VORREI PRENOTARE UNA VISITA",
	})

	assert.True(t, result.Appointment.Detected)
}

func TestClassify_DashSeparatedDate(t *testing.T) {
	c := NewKeywordClassifier()

	result := c.Classify(models.InboxMessage{
		From: "mario@example.com",
		Body: "vorrei venire il 3-4-25 alle 9:15",
	})

	assert.True(t, result.Appointment.Detected)
	assert.Equal(t, "3-4-25", result.Appointment.RawDate)
	assert.Equal(t, "9:15", result.Appointment.RawTime)
}
