package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-quiz/internal/catalog"
	"github.com/mind-engage/mindengage-quiz/internal/persist"
	"github.com/mind-engage/mindengage-quiz/internal/question"
	"github.com/mind-engage/mindengage-quiz/internal/selection"
	"github.com/mind-engage/mindengage-quiz/internal/session"
	"github.com/mind-engage/mindengage-quiz/internal/source"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
	"github.com/mind-engage/mindengage-quiz/internal/transcript"
)

// Deps are the collaborators the quiz API is served from.
type Deps struct {
	Catalog   *catalog.Catalog
	Resolver  *selection.Resolver
	Machine   *session.Machine
	Gateway   *persist.Gateway
	Blobs     storage.BlobStore // optional transcript archive
	BlockSize int
	Log       *zap.Logger
	Now       func() time.Time
}

// Mount registers the quiz API on r.
func Mount(r chi.Router, d Deps) {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	r.Get("/catalog", CatalogHandler(d.Catalog, d.BlockSize))

	r.Route("/quiz", func(qr chi.Router) {
		qr.Get("/", GetQuizHandler(d.Machine))
		qr.Post("/start", StartQuizHandler(d))
		qr.Put("/answers/{index}", RecordAnswerHandler(d.Machine))
		qr.Post("/save", SaveQuizHandler(d.Machine))
		qr.Post("/finish", FinishQuizHandler(d.Machine))
		qr.Post("/redo", RedoQuizHandler(d.Machine))
		qr.Post("/exit", ExitQuizHandler(d.Machine))
		qr.Post("/retry-failed", RetryFailedHandler(d))
		qr.Post("/resume", ResumeQuizHandler(d))
		qr.Get("/export", ExportTranscriptHandler(d))
		qr.Post("/import", ImportTranscriptHandler(d.Machine))
	})

	r.Get("/failed", FailedQuestionsHandler(d.Gateway))
	r.Delete("/failed", ClearFailedQuestionsHandler(d.Gateway))
	r.Get("/history", HistoryHandler(d.Gateway))
	r.Post("/history/{id}/repeat", RepeatExamHandler(d.Gateway))
	r.Get("/stats", StatsHandler(d.Gateway))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, selection.ErrEmptySelection), errors.Is(err, session.ErrNoQuestionsMatched):
		return http.StatusUnprocessableEntity
	case errors.Is(err, source.ErrSourceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, transcript.ErrMalformedTranscript),
		errors.Is(err, question.ErrInvalidQuestion),
		errors.Is(err, selection.ErrInvalidSpec),
		errors.Is(err, selection.ErrUnknownLaw),
		errors.Is(err, selection.ErrUnknownTopic),
		errors.Is(err, selection.ErrUnknownExam):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrIndexOutOfRange), errors.Is(err, session.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
