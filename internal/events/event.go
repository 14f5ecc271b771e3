// Package events describes processed tickets for downstream consumers and
// publishes them to Kafka.
package events

import "time"

// TicketEvent is emitted once per successfully processed ticket.
type TicketEvent struct {
	TicketID         string    `json:"ticket_id"`
	CustomerEmail    string    `json:"customer_email"`
	Subject          string    `json:"subject,omitempty"`
	Message          string    `json:"message"`
	Category         string    `json:"category"`
	Urgency          string    `json:"urgency"`
	Sentiment        string    `json:"sentiment"`
	Response         string    `json:"response"`
	Tone             string    `json:"tone"`
	SuggestedActions []string  `json:"suggested_actions"`
	DegradedStages   []string  `json:"degraded_stages,omitempty"`
	Stateful         bool      `json:"stateful"`
	ProcessedAt      time.Time `json:"processed_at"`
}

// Escalated reports whether the ticket needs a human quickly.
func (e TicketEvent) Escalated() bool {
	return e.Urgency == "high" || e.Urgency == "critical"
}
