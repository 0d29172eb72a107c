// Package stats summarises exam history.
package stats

import (
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/persist"
)

const (
	PassGrade   = 5.0
	RecentLimit = 10
)

type Point struct {
	ID     string    `json:"id"`
	Date   time.Time `json:"date"`
	Grade  float64   `json:"grade"`
	Total  int       `json:"total"`
	Passed bool      `json:"passed"`
}

type Summary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Best    float64 `json:"best"`
	Passed  int     `json:"passed"`
	// Recent holds the latest exams oldest first, for charting.
	Recent []Point `json:"recent"`
}

// Summarize expects history newest first, as the gateway returns it.
func Summarize(history []persist.HistoryEntry) Summary {
	s := Summary{Count: len(history), Recent: []Point{}}
	if len(history) == 0 {
		return s
	}

	sum := 0.0
	s.Best = history[0].FinalGrade
	for _, h := range history {
		sum += h.FinalGrade
		if h.FinalGrade > s.Best {
			s.Best = h.FinalGrade
		}
		if h.FinalGrade >= PassGrade {
			s.Passed++
		}
	}
	s.Average = sum / float64(len(history))

	n := min(RecentLimit, len(history))
	for i := n - 1; i >= 0; i-- {
		h := history[i]
		s.Recent = append(s.Recent, Point{
			ID:     h.ID,
			Date:   h.Date,
			Grade:  h.FinalGrade,
			Total:  h.Total,
			Passed: h.FinalGrade >= PassGrade,
		})
	}
	return s
}
