// Package analytics aggregates journaled ticket events into daily reports.
package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"support-orchestrator/internal/events"
)

type DailyStats struct {
	Date            string         `json:"date"`
	TotalTickets    int            `json:"total_tickets"`
	UniqueCustomers int            `json:"unique_customers"`
	Escalated       int            `json:"escalated"`
	ByCategory      map[string]int `json:"by_category"`
	ByUrgency       map[string]int `json:"by_urgency"`
	DegradedStages  map[string]int `json:"degraded_stages"`
}

// AnalyzeDay counts the tickets processed on the calendar day of day.
func AnalyzeDay(evs []events.TicketEvent, day time.Time) *DailyStats {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	stats := &DailyStats{
		Date:           start.Format("2006-01-02"),
		ByCategory:     map[string]int{},
		ByUrgency:      map[string]int{},
		DegradedStages: map[string]int{},
	}
	customers := map[string]bool{}

	for _, ev := range evs {
		if ev.ProcessedAt.Before(start) || !ev.ProcessedAt.Before(end) {
			continue
		}
		stats.TotalTickets++
		customers[ev.CustomerEmail] = true
		stats.ByCategory[ev.Category]++
		stats.ByUrgency[ev.Urgency]++
		if ev.Escalated() {
			stats.Escalated++
		}
		for _, s := range ev.DegradedStages {
			stats.DegradedStages[s]++
		}
	}
	stats.UniqueCustomers = len(customers)
	return stats
}

// Summary renders the stats as a plain-text report.
func (ds *DailyStats) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Support report for %s\n\n", ds.Date)
	fmt.Fprintf(&b, "Tickets processed: %d\nUnique customers: %d\nEscalated (high/critical): %d\n", ds.TotalTickets, ds.UniqueCustomers, ds.Escalated)
	writeCounts(&b, "By category", ds.ByCategory)
	writeCounts(&b, "By urgency", ds.ByUrgency)
	writeCounts(&b, "Degraded stages", ds.DegradedStages)
	return b.String()
}

func writeCounts(b *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "- %s: %d\n", k, counts[k])
	}
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
