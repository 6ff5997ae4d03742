package model

import "time"

// HistoryExport is the top-level JSON structure written by `mockexam history`.
type HistoryExport struct {
	ExportedAt time.Time        `json:"exported_at"`
	Count      int              `json:"count"`
	Subjects   []SubjectSummary `json:"subjects"`
	Attempts   []ExamAttempt    `json:"attempts"`
}

// SubjectSummary aggregates attempts for one subject.
type SubjectSummary struct {
	Subject     Subject `json:"subject"`
	Attempts    int     `json:"attempts"`
	BestPercent int     `json:"best_percent"`
	LastPercent int     `json:"last_percent"`
	LastAttempt int64   `json:"last_attempt"`
}

// Summarise groups attempts by subject, preserving first-seen order.
func Summarise(attempts []ExamAttempt) []SubjectSummary {
	index := make(map[Subject]int)
	var out []SubjectSummary
	for _, a := range attempts {
		pct := Percent(a.Score, a.MaxScore)
		i, ok := index[a.Subject]
		if !ok {
			index[a.Subject] = len(out)
			out = append(out, SubjectSummary{Subject: a.Subject})
			i = len(out) - 1
		}
		s := &out[i]
		s.Attempts++
		if pct > s.BestPercent {
			s.BestPercent = pct
		}
		if a.Timestamp >= s.LastAttempt {
			s.LastAttempt = a.Timestamp
			s.LastPercent = pct
		}
	}
	return out
}
