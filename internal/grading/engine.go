// Package grading scores a finished quiz with negative marking.
package grading

import (
	"math"

	"github.com/mind-engage/mindengage-quiz/internal/question"
)

// Outcome classifies a single response.
type Outcome int

const (
	Unanswered Outcome = iota
	Correct
	Incorrect
)

func (o Outcome) String() string {
	switch o {
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	default:
		return "unanswered"
	}
}

// Result is the outcome of scoring a whole quiz.
type Result struct {
	Correct     int                 `json:"correct"`
	Incorrect   int                 `json:"incorrect"`
	Unanswered  int                 `json:"unanswered"`
	Total       int                 `json:"total"`
	NetScore    float64             `json:"netScore"`
	FinalGrade  float64             `json:"finalGrade"`
	ThemeCounts map[string]int      `json:"themeCounts"`
	Failed      []question.Question `json:"failed"`
}

// Passed reports whether the grade reaches half the scale.
func (r Result) Passed(scale float64) bool { return r.FinalGrade >= scale/2 }

type Option func(*config)

type config struct {
	Penalty float64 // points subtracted per incorrect answer
	Scale   float64 // grade for a perfect score
}

const (
	DefaultPenalty = 1.0 / 3.0
	DefaultScale   = 10.0
)

func WithPenalty(p float64) Option { return func(c *config) { c.Penalty = p } }
func WithScale(s float64) Option   { return func(c *config) { c.Scale = s } }

// Classify grades one response. A missing or blank answer is unanswered;
// keys compare case-insensitively.
func Classify(q question.Question, answer string) Outcome {
	if question.NormalizeKey(answer) == "" {
		return Unanswered
	}
	if q.IsCorrect(answer) {
		return Correct
	}
	return Incorrect
}

// Score grades questions against answers, keyed by question position.
func Score(questions []question.Question, answers map[int]string, opts ...Option) Result {
	cfg := config{Penalty: DefaultPenalty, Scale: DefaultScale}
	for _, o := range opts {
		o(&cfg)
	}

	res := Result{
		Total:       len(questions),
		ThemeCounts: map[string]int{},
		Failed:      []question.Question{},
	}
	for i, q := range questions {
		res.ThemeCounts[q.Theme]++
		switch Classify(q, answers[i]) {
		case Correct:
			res.Correct++
		case Incorrect:
			res.Incorrect++
			res.Failed = append(res.Failed, q)
		default:
			res.Unanswered++
		}
	}

	res.NetScore = float64(res.Correct) - float64(res.Incorrect)*cfg.Penalty
	if res.Total > 0 {
		res.FinalGrade = math.Max(0, res.NetScore/float64(res.Total)*cfg.Scale)
	}
	return res
}
