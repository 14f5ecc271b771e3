// Package storage persists tickets, customer insights, processing logs and
// the typed knowledge catalog.
package storage

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid ticket status transition")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusClassified Status = "classified"
	StatusProcessed  Status = "processed"
)

type Ticket struct {
	ID               string     `json:"id"`
	CustomerEmail    string     `json:"customer_email"`
	Subject          string     `json:"subject,omitempty"`
	Message          string     `json:"message"`
	Category         string     `json:"classification,omitempty"`
	Urgency          string     `json:"urgency,omitempty"`
	Sentiment        string     `json:"sentiment,omitempty"`
	Reasoning        string     `json:"reasoning,omitempty"`
	AIResponse       string     `json:"ai_response,omitempty"`
	SuggestedActions []string   `json:"actions_taken"`
	Status           Status     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

// Classified is what MarkClassified writes.
type Classified struct {
	Category  string
	Urgency   string
	Sentiment string
	Reasoning string
}

type ProcessingLog struct {
	ID        int64     `json:"id"`
	TicketID  string    `json:"ticket_id"`
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

type CustomerInsight struct {
	Email            string    `json:"email"`
	Preferences      string    `json:"preferences,omitempty"`
	HistorySummary   string    `json:"history_summary,omitempty"`
	InteractionCount int       `json:"interaction_count"`
	LastUpdated      time.Time `json:"last_updated"`
}

// InsightUpdate merges into a CustomerInsight. Empty fields keep the stored value.
type InsightUpdate struct {
	Email          string
	Preferences    string
	HistorySummary string
}

type Analytics struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"byStatus"`
	ByCategory map[string]int `json:"byClassification"`
	ByUrgency  map[string]int `json:"byUrgency"`
}
