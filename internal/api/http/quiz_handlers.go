package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/selection"
	"github.com/mind-engage/mindengage-quiz/internal/session"
)

const maxBody = 10 << 20

type quizView struct {
	State    session.State    `json:"state"`
	Session  session.Snapshot `json:"session"`
	Answered int              `json:"answered"`
	Result   *grading.Result  `json:"result,omitempty"`
}

func viewOf(m *session.Machine) quizView {
	snap := m.Snapshot()
	v := quizView{State: m.State(), Session: snap, Answered: snap.Answered()}
	if res, ok := m.Result(); ok {
		v.Result = &res
	}
	return v
}

// GET /quiz
func GetQuizHandler(m *session.Machine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, viewOf(m))
	}
}

// POST /quiz/start
//
// The body is either a selection spec ({"kind": ...}) or a catalog request
// ({"mode": "laws"|"topics"|"exam", "ids": [...], ...}).
func StartQuizHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
			return
		}
		spec, err := decodeStart(d, body)
		if err != nil {
			fail(w, err)
			return
		}
		if d.Machine.State() != session.Setup {
			fail(w, session.ErrInvalidState)
			return
		}

		qs, err := d.Resolver.Resolve(r.Context(), spec)
		if err != nil {
			fail(w, err)
			return
		}
		if _, err := d.Machine.Start(qs); err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, viewOf(d.Machine))
	}
}

func decodeStart(d Deps, body []byte) (selection.Spec, error) {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", selection.ErrInvalidSpec, err)
	}
	if probe.Kind != "" {
		return selection.Decode(body)
	}
	var req selection.Request
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", selection.ErrInvalidSpec, err)
	}
	return selection.Build(d.Catalog, req, d.BlockSize)
}

// PUT /quiz/answers/{index}  body: {"answer":"b"}; an empty answer clears it
func RecordAnswerHandler(m *session.Machine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			http.Error(w, "index must be an integer", http.StatusBadRequest)
			return
		}
		var req struct {
			Answer string `json:"answer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if err := m.RecordAnswer(idx, req.Answer); err != nil {
			fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /quiz/save
func SaveQuizHandler(m *session.Machine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := m.Save(r.Context()); err != nil {
			fail(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /quiz/finish
func FinishQuizHandler(m *session.Machine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := m.Finish(r.Context())
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// POST /quiz/redo
func RedoQuizHandler(m *session.Machine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := m.Redo(); err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(m))
	}
}

// POST /quiz/exit
func ExitQuizHandler(m *session.Machine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.Exit()
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /quiz/retry-failed
func RetryFailedHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failed, err := d.Gateway.FailedQuestions(r.Context())
		if err != nil {
			http.Error(w, "failed questions: "+err.Error(), http.StatusInternalServerError)
			return
		}
		qs, err := d.Resolver.Resolve(r.Context(), selection.ReviewSet{Questions: failed})
		if err != nil {
			fail(w, err)
			return
		}
		if _, err := d.Machine.LoadReview(qs); err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, viewOf(d.Machine))
	}
}

// POST /quiz/resume
//
// A pending repeat exam wins over a saved session; the repeat payload is
// consumed either way.
func ResumeQuizHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		repeat, ok, err := d.Gateway.LoadRepeatExam(ctx)
		if err != nil {
			http.Error(w, "repeat exam: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if ok {
			qs, err := d.Resolver.Resolve(ctx, selection.ReviewSet{Questions: repeat})
			if err == nil {
				_, err = d.Machine.LoadReview(qs)
			}
			if err != nil {
				fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, viewOf(d.Machine))
			return
		}

		saved, ok, err := d.Gateway.LoadSession(ctx)
		if err != nil {
			http.Error(w, "saved session: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "nothing to resume", http.StatusNotFound)
			return
		}
		if _, err := d.Machine.Restore(saved); err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(d.Machine))
	}
}
