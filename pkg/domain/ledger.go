package domain

import "time"

// LedgerEntry records the outcome of one completed loop.
type LedgerEntry struct {
	ID             string    `json:"id"`
	RunID          string    `json:"run_id"`
	Question       string    `json:"question"`
	Success        bool      `json:"success"`
	IterationsUsed int       `json:"iterations_used"`
	Reason         string    `json:"reason,omitempty"`
	Answer         string    `json:"answer,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// LedgerSummary aggregates ledger entries.
type LedgerSummary struct {
	TotalNodes   int     `json:"total_nodes"`
	SuccessCount int     `json:"success_count"`
	FailureCount int     `json:"failure_count"`
	SuccessRate  float64 `json:"success_rate"`
}

// Summarize computes summary statistics over entries.
func Summarize(entries []LedgerEntry) LedgerSummary {
	s := LedgerSummary{TotalNodes: len(entries)}
	for _, e := range entries {
		if e.Success {
			s.SuccessCount++
		}
	}
	s.FailureCount = s.TotalNodes - s.SuccessCount
	if s.TotalNodes > 0 {
		s.SuccessRate = float64(s.SuccessCount) / float64(s.TotalNodes)
	}
	return s
}
