package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/catalog"
	"github.com/mind-engage/mindengage-quiz/internal/persist"
	"github.com/mind-engage/mindengage-quiz/internal/selection"
	"github.com/mind-engage/mindengage-quiz/internal/stats"
)

type lawView struct {
	catalog.Law
	Blocks int `json:"blocks"`
}

type definitionView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Total  int    `json:"total"`
	Blocks int    `json:"blocks"`
}

// GET /catalog
func CatalogHandler(cat *catalog.Catalog, blockSize int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := struct {
			BlockSize int              `json:"blockSize"`
			Laws      []lawView        `json:"laws"`
			Topics    []definitionView `json:"topics"`
			Exams     []definitionView `json:"exams"`
		}{BlockSize: blockSize, Laws: []lawView{}, Topics: []definitionView{}, Exams: []definitionView{}}
		if cat != nil {
			for _, l := range cat.Laws {
				out.Laws = append(out.Laws, lawView{Law: l, Blocks: selection.BlockCount(l.Total, blockSize)})
			}
			out.Topics = defViews(cat.Topics, blockSize)
			out.Exams = defViews(cat.Exams, 0)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func defViews(defs []catalog.Definition, blockSize int) []definitionView {
	out := make([]definitionView, 0, len(defs))
	for _, d := range defs {
		out = append(out, definitionView{
			ID:     d.ID,
			Name:   d.Name,
			Total:  d.Total(),
			Blocks: selection.BlockCount(d.Total(), blockSize),
		})
	}
	return out
}

// GET /failed
func FailedQuestionsHandler(gw *persist.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs, err := gw.FailedQuestions(r.Context())
		if err != nil {
			http.Error(w, "failed questions: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, qs)
	}
}

// DELETE /failed
func ClearFailedQuestionsHandler(gw *persist.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := gw.ClearFailedQuestions(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /history
func HistoryHandler(gw *persist.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hist, err := gw.ExamHistory(r.Context())
		if err != nil {
			http.Error(w, "history: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, hist)
	}
}

// GET /stats
func StatsHandler(gw *persist.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hist, err := gw.ExamHistory(r.Context())
		if err != nil {
			http.Error(w, "history: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats.Summarize(hist))
	}
}

// POST /history/{id}/repeat
//
// Queues the exam's questions; the next POST /quiz/resume picks them up.
func RepeatExamHandler(gw *persist.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(chi.URLParam(r, "id"))
		entry, ok, err := gw.HistoryEntry(r.Context(), id)
		if err != nil {
			http.Error(w, "history: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			http.Error(w, "exam not found", http.StatusNotFound)
			return
		}
		if len(entry.Questions) == 0 {
			http.Error(w, "exam has no stored questions", http.StatusUnprocessableEntity)
			return
		}
		if err := gw.SaveRepeatExam(r.Context(), entry.Questions); err != nil {
			http.Error(w, "save repeat exam: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]int{"questions": len(entry.Questions)})
	}
}
