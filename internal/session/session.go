// Package session holds the single active quiz: its questions, the answers
// given so far, and the lifecycle from setup to review.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
	"github.com/mind-engage/mindengage-quiz/internal/question"
)

var (
	ErrNoQuestionsMatched = errors.New("no questions matched the selected criteria")
	ErrIndexOutOfRange    = errors.New("question index out of range")
	ErrInvalidState       = errors.New("operation not allowed in current state")
)

type State int

const (
	Setup State = iota
	InProgress
	Finished
	Review
)

func (s State) String() string {
	switch s {
	case InProgress:
		return "in_progress"
	case Finished:
		return "finished"
	case Review:
		return "review"
	default:
		return "setup"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Snapshot is a point-in-time copy of a session. Answers are keyed by
// question position.
type Snapshot struct {
	ID        string              `json:"id"`
	Questions []question.Question `json:"questions"`
	Answers   map[int]string      `json:"answers"`
}

// UnmarshalJSON also accepts sessions saved by the browser app, which keep
// the answers under userAnswers.
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID          string              `json:"id"`
		Questions   []question.Question `json:"questions"`
		Answers     map[int]string      `json:"answers"`
		UserAnswers map[int]string      `json:"userAnswers"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	answers := raw.Answers
	if len(answers) == 0 {
		answers = raw.UserAnswers
	}
	*s = Snapshot{ID: raw.ID, Questions: raw.Questions, Answers: answers}
	return nil
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{
		ID:        s.ID,
		Questions: append([]question.Question(nil), s.Questions...),
		Answers:   make(map[int]string, len(s.Answers)),
	}
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	return out
}

// Gateway receives the writes a session produces. Implementations are
// durable key-value stores.
type Gateway interface {
	SaveSession(ctx context.Context, s Snapshot) error
	ClearSession(ctx context.Context) error
	SaveFailedQuestions(ctx context.Context, failed []question.Question) error
	SaveExamResult(ctx context.Context, s Snapshot, r grading.Result) error
}

type Option func(*Machine)

func WithLogger(l *zap.Logger) Option { return func(m *Machine) { m.log = l } }

// WithScoring passes options to every grading.Score call.
func WithScoring(opts ...grading.Option) Option {
	return func(m *Machine) { m.scoring = append(m.scoring, opts...) }
}

// Machine is the quiz session state machine. There is one active session
// at a time; the mutex serialises callers such as concurrent HTTP handlers.
type Machine struct {
	mu      sync.Mutex
	state   State
	snap    Snapshot
	result  *grading.Result
	gw      Gateway // may be nil
	log     *zap.Logger
	scoring []grading.Option
}

func NewMachine(gw Gateway, opts ...Option) *Machine {
	m := &Machine{gw: gw, log: zap.NewNop()}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the current session.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.clone()
}

// Result returns the score of the last finished session, if any.
func (m *Machine) Result() (grading.Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.result == nil {
		return grading.Result{}, false
	}
	return *m.result, true
}

// Start begins a new session. It is allowed from Setup only; use LoadReview
// to replace a finished session.
func (m *Machine) Start(questions []question.Question) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Setup {
		return Snapshot{}, fmt.Errorf("%w: start from %s", ErrInvalidState, m.state)
	}
	return m.begin(questions)
}

// LoadReview starts a session over a pre-resolved list, such as the failed
// question bank or a repeated exam, from any state.
func (m *Machine) LoadReview(questions []question.Question) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.begin(questions)
}

func (m *Machine) begin(questions []question.Question) (Snapshot, error) {
	if len(questions) == 0 {
		return Snapshot{}, ErrNoQuestionsMatched
	}
	if err := question.ValidateAll(questions); err != nil {
		return Snapshot{}, err
	}
	m.snap = Snapshot{
		ID:        uuid.NewString(),
		Questions: append([]question.Question(nil), questions...),
		Answers:   map[int]string{},
	}
	m.result = nil
	m.state = InProgress
	m.log.Info("session started", zap.String("session", m.snap.ID), zap.Int("questions", len(questions)))
	return m.snap.clone(), nil
}

// RecordAnswer sets the answer at index, overwriting any previous one.
// An empty key clears it.
func (m *Machine) RecordAnswer(index int, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != InProgress {
		return fmt.Errorf("%w: answer in %s", ErrInvalidState, m.state)
	}
	if index < 0 || index >= len(m.snap.Questions) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(m.snap.Questions))
	}
	key = question.NormalizeKey(key)
	if key == "" {
		delete(m.snap.Answers, index)
		return nil
	}
	m.snap.Answers[index] = key
	return nil
}

// Finish scores the session, records it in history, merges the failures into
// the failed-question bank and clears the saved session, then moves to
// Review. Persistence failures are logged, not returned. Calling Finish again
// re-scores the same answers without writing anything.
func (m *Machine) Finish(ctx context.Context) (grading.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Finished, Review:
		return grading.Score(m.snap.Questions, m.snap.Answers, m.scoring...), nil
	case InProgress:
	default:
		return grading.Result{}, fmt.Errorf("%w: finish from %s", ErrInvalidState, m.state)
	}

	snap := m.snap.clone()
	res := grading.Score(snap.Questions, snap.Answers, m.scoring...)
	m.result = &res
	m.state = Finished

	metrics.SessionsFinished.Inc()
	metrics.FinalGrades.Observe(res.FinalGrade)
	m.log.Info("session finished",
		zap.String("session", snap.ID),
		zap.Int("correct", res.Correct),
		zap.Int("incorrect", res.Incorrect),
		zap.Int("unanswered", res.Unanswered),
		zap.Float64("grade", res.FinalGrade))

	if m.gw != nil {
		m.persist("save_exam_result", m.gw.SaveExamResult(ctx, snap, res))
		m.persist("save_failed_questions", m.gw.SaveFailedQuestions(ctx, res.Failed))
		m.persist("clear_session", m.gw.ClearSession(ctx))
	}

	m.state = Review
	return res, nil
}

func (m *Machine) persist(op string, err error) {
	if err == nil {
		return
	}
	metrics.PersistenceErrors.WithLabelValues(op).Inc()
	m.log.Error("persistence write failed", zap.String("op", op), zap.String("session", m.snap.ID), zap.Error(err))
}

// Save stores the in-progress session so it can be resumed later.
func (m *Machine) Save(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != InProgress {
		return fmt.Errorf("%w: save in %s", ErrInvalidState, m.state)
	}
	if m.gw == nil {
		return nil
	}
	if err := m.gw.SaveSession(ctx, m.snap.clone()); err != nil {
		metrics.PersistenceErrors.WithLabelValues("save_session").Inc()
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Redo restarts a finished session with the same questions and no answers.
func (m *Machine) Redo() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Finished && m.state != Review {
		return Snapshot{}, fmt.Errorf("%w: redo from %s", ErrInvalidState, m.state)
	}
	return m.begin(m.snap.Questions)
}

// Exit discards the session and returns to Setup.
func (m *Machine) Exit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Setup
	m.snap = Snapshot{}
	m.result = nil
}

// Restore resumes a persisted session. Answers pointing past the question
// list are dropped.
func (m *Machine) Restore(s Snapshot) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Setup {
		return Snapshot{}, fmt.Errorf("%w: restore from %s", ErrInvalidState, m.state)
	}
	if err := m.load(s); err != nil {
		return Snapshot{}, err
	}
	m.state = InProgress
	m.log.Info("session restored", zap.String("session", m.snap.ID), zap.Int("answers", len(m.snap.Answers)))
	return m.snap.clone(), nil
}

// ReviewImported opens a session from an external transcript directly in
// Review, scored but not persisted.
func (m *Machine) ReviewImported(s Snapshot) (grading.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.load(s); err != nil {
		return grading.Result{}, err
	}
	res := grading.Score(m.snap.Questions, m.snap.Answers, m.scoring...)
	m.result = &res
	m.state = Review
	return res, nil
}

func (m *Machine) load(s Snapshot) error {
	if len(s.Questions) == 0 {
		return ErrNoQuestionsMatched
	}
	if err := question.ValidateAll(s.Questions); err != nil {
		return err
	}
	snap := s.clone()
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	for i, a := range snap.Answers {
		a = question.NormalizeKey(a)
		if i < 0 || i >= len(snap.Questions) || a == "" {
			delete(snap.Answers, i)
			continue
		}
		snap.Answers[i] = a
	}
	m.snap = snap
	m.result = nil
	return nil
}

// Answered counts the questions that have an answer.
func (s Snapshot) Answered() int {
	n := 0
	for _, a := range s.Answers {
		if strings.TrimSpace(a) != "" {
			n++
		}
	}
	return n
}
