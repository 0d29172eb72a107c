package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SelectionsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_selections_total",
			Help: "Selections resolved, by strategy and outcome",
		},
		[]string{"kind", "outcome"},
	)

	SourceFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_source_fetches_total",
			Help: "Source file fetches, by outcome",
		},
		[]string{"outcome"},
	)

	SessionsFinished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_sessions_finished_total",
			Help: "Quiz sessions scored and persisted",
		},
	)

	FinalGrades = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quiz_final_grade",
			Help:    "Final grade (0-10) of finished sessions",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)

	PersistenceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_persistence_errors_total",
			Help: "Failed writes to the persistence gateway, by operation",
		},
		[]string{"op"},
	)
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call twice.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(SelectionsResolved, SourceFetches, SessionsFinished, FinalGrades, PersistenceErrors)
	})
}

func Handler() http.Handler { return promhttp.Handler() }
