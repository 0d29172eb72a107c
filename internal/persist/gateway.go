package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/question"
	"github.com/mind-engage/mindengage-quiz/internal/session"
)

// Storage keys. The names match the browser app's local storage, and a
// session it saved under KeySession still loads.
const (
	KeySession     = "opo_current_session"
	KeyFailed      = "opo_failed_questions"
	KeyHistory     = "opo_exam_history"
	KeyRepeatExam  = "opo_repeat_exam"
	DefaultHistory = 50
)

// HistoryEntry is one finished exam.
type HistoryEntry struct {
	ID         string              `json:"id"`
	Date       time.Time           `json:"date"`
	FinalGrade float64             `json:"score"`
	Correct    int                 `json:"correct"`
	Incorrect  int                 `json:"incorrect"`
	Unanswered int                 `json:"unanswered"`
	Total      int                 `json:"total"`
	Questions  []question.Question `json:"questions"`
}

// Gateway implements session.Gateway and the read side used by the API.
type Gateway struct {
	kv    KV
	limit int
	now   func() time.Time
	log   *zap.Logger
}

type GatewayOption func(*Gateway)

func WithHistoryLimit(n int) GatewayOption {
	return func(g *Gateway) {
		if n > 0 {
			g.limit = n
		}
	}
}

func WithClock(now func() time.Time) GatewayOption { return func(g *Gateway) { g.now = now } }

func WithLogger(l *zap.Logger) GatewayOption { return func(g *Gateway) { g.log = l } }

func NewGateway(kv KV, opts ...GatewayOption) *Gateway {
	g := &Gateway{kv: kv, limit: DefaultHistory, now: time.Now, log: zap.NewNop()}
	for _, o := range opts {
		o(g)
	}
	return g
}

var _ session.Gateway = (*Gateway)(nil)

// --- current session ---

func (g *Gateway) SaveSession(ctx context.Context, s session.Snapshot) error {
	return g.setJSON(ctx, KeySession, s)
}

// LoadSession returns the saved session; ok is false when there is none.
func (g *Gateway) LoadSession(ctx context.Context) (s session.Snapshot, ok bool, err error) {
	ok, err = g.getJSON(ctx, KeySession, &s)
	return s, ok, err
}

func (g *Gateway) ClearSession(ctx context.Context) error {
	return g.kv.Delete(ctx, KeySession)
}

// --- failed question bank ---

// SaveFailedQuestions appends the questions whose text is not yet in the bank.
func (g *Gateway) SaveFailedQuestions(ctx context.Context, failed []question.Question) error {
	if len(failed) == 0 {
		return nil
	}
	return g.kv.Update(ctx, KeyFailed, func(old []byte) ([]byte, error) {
		var bank []question.Question
		if err := decodeOrEmpty(old, &bank); err != nil {
			g.log.Warn("discarding unreadable failed-question bank", zap.Error(err))
			bank = nil
		}
		seen := make(map[string]struct{}, len(bank))
		for _, q := range bank {
			seen[q.Text] = struct{}{}
		}
		added := 0
		for _, q := range failed {
			if _, ok := seen[q.Text]; ok {
				continue
			}
			seen[q.Text] = struct{}{}
			bank = append(bank, q)
			added++
		}
		g.log.Debug("failed questions merged", zap.Int("added", added), zap.Int("bank", len(bank)))
		return json.Marshal(bank)
	})
}

func (g *Gateway) FailedQuestions(ctx context.Context) ([]question.Question, error) {
	qs := []question.Question{}
	if _, err := g.getJSON(ctx, KeyFailed, &qs); err != nil {
		return nil, err
	}
	return qs, nil
}

func (g *Gateway) ClearFailedQuestions(ctx context.Context) error {
	return g.kv.Delete(ctx, KeyFailed)
}

// --- exam history ---

// SaveExamResult records a finished exam at the head of the history,
// dropping the oldest entries past the limit.
func (g *Gateway) SaveExamResult(ctx context.Context, s session.Snapshot, r grading.Result) error {
	entry := HistoryEntry{
		ID:         uuid.NewString(),
		Date:       g.now().UTC(),
		FinalGrade: r.FinalGrade,
		Correct:    r.Correct,
		Incorrect:  r.Incorrect,
		Unanswered: r.Unanswered,
		Total:      r.Total,
		Questions:  s.Questions,
	}
	return g.kv.Update(ctx, KeyHistory, func(old []byte) ([]byte, error) {
		var hist []HistoryEntry
		if err := decodeOrEmpty(old, &hist); err != nil {
			g.log.Warn("discarding unreadable exam history", zap.Error(err))
			hist = nil
		}
		hist = append([]HistoryEntry{entry}, hist...)
		if len(hist) > g.limit {
			hist = hist[:g.limit]
		}
		return json.Marshal(hist)
	})
}

// ExamHistory lists finished exams, most recent first.
func (g *Gateway) ExamHistory(ctx context.Context) ([]HistoryEntry, error) {
	hist := []HistoryEntry{}
	if _, err := g.getJSON(ctx, KeyHistory, &hist); err != nil {
		return nil, err
	}
	return hist, nil
}

// HistoryEntry looks up a single exam by id.
func (g *Gateway) HistoryEntry(ctx context.Context, id string) (HistoryEntry, bool, error) {
	hist, err := g.ExamHistory(ctx)
	if err != nil {
		return HistoryEntry{}, false, err
	}
	for _, h := range hist {
		if h.ID == id {
			return h, true, nil
		}
	}
	return HistoryEntry{}, false, nil
}

// --- repeat exam handoff ---

func (g *Gateway) SaveRepeatExam(ctx context.Context, qs []question.Question) error {
	return g.setJSON(ctx, KeyRepeatExam, qs)
}

// LoadRepeatExam consumes the pending repeat exam: it is cleared as it is read.
func (g *Gateway) LoadRepeatExam(ctx context.Context) ([]question.Question, bool, error) {
	var qs []question.Question
	ok, err := g.getJSON(ctx, KeyRepeatExam, &qs)
	if err != nil || !ok {
		return nil, false, err
	}
	if err := g.ClearRepeatExam(ctx); err != nil {
		return nil, false, err
	}
	return qs, true, nil
}

func (g *Gateway) ClearRepeatExam(ctx context.Context) error {
	return g.kv.Delete(ctx, KeyRepeatExam)
}

// --- helpers ---

func (g *Gateway) setJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return g.kv.Set(ctx, key, b)
}

func (g *Gateway) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	b, err := g.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func decodeOrEmpty(b []byte, dst any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}
