package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/question"
	"github.com/mind-engage/mindengage-quiz/internal/session"
)

func q(text string) question.Question {
	return question.Question{
		Theme:         "CE",
		Text:          text,
		Options:       map[string]string{"a": "1", "b": "2", "c": "3", "d": "4"},
		CorrectAnswer: "a",
	}
}

func sqliteKV(t *testing.T) KV {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "kv.db")
	kv, err := OpenSQLKV(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func backends(t *testing.T) map[string]KV {
	out := map[string]KV{
		"memory": NewMemoryKV(),
		"sqlite": sqliteKV(t),
	}
	if url := os.Getenv("TEST_REDIS_URL"); url != "" {
		kv, err := OpenRedisKV(context.Background(), url, fmt.Sprintf("test:%d:", time.Now().UnixNano()))
		require.NoError(t, err)
		t.Cleanup(func() { _ = kv.Close() })
		out["redis"] = kv
	}
	return out
}

func TestKVContract(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := kv.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, kv.Set(ctx, "k", []byte(`"v1"`)))
			require.NoError(t, kv.Set(ctx, "k", []byte(`"v2"`)))
			v, err := kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, `"v2"`, string(v))

			require.NoError(t, kv.Update(ctx, "n", func(old []byte) ([]byte, error) {
				assert.Nil(t, old)
				return []byte("1"), nil
			}))
			require.NoError(t, kv.Update(ctx, "n", func(old []byte) ([]byte, error) {
				return append(old, '2'), nil
			}))
			v, err = kv.Get(ctx, "n")
			require.NoError(t, err)
			assert.Equal(t, "12", string(v))

			require.NoError(t, kv.Delete(ctx, "k"))
			require.NoError(t, kv.Delete(ctx, "k"))
			_, err = kv.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemoryUpdateIsAtomic(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = kv.Update(ctx, "c", func(old []byte) ([]byte, error) {
				return append(old, 'x'), nil
			})
		}()
	}
	wg.Wait()
	v, err := kv.Get(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, v, 50)
}

func TestGatewaySession(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := NewGateway(kv)

			_, ok, err := g.LoadSession(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			snap := session.Snapshot{ID: "s1", Questions: []question.Question{q("one"), q("two")}, Answers: map[int]string{1: "c"}}
			require.NoError(t, g.SaveSession(ctx, snap))

			got, ok, err := g.LoadSession(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, snap, got)

			require.NoError(t, g.ClearSession(ctx))
			_, ok, err = g.LoadSession(ctx)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestGatewayLoadsBrowserSession(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	raw := `{"questions":[{"tema":"CE","pregunta":"one","opciones":{"a":"1","b":"2","c":"3","d":"4"},"respuestaCorrecta":"a"}],"userAnswers":{"0":"b"}}`
	require.NoError(t, kv.Set(ctx, KeySession, []byte(raw)))

	got, ok, err := NewGateway(kv).LoadSession(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Questions, 1)
	assert.Equal(t, "one", got.Questions[0].Text)
	assert.Equal(t, map[int]string{0: "b"}, got.Answers)
}

func TestGatewayFailedMergeByText(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			g := NewGateway(kv)

			require.NoError(t, g.SaveFailedQuestions(ctx, []question.Question{q("one"), q("two")}))
			dup := q("two")
			dup.Explanation = "different explanation, same text"
			require.NoError(t, g.SaveFailedQuestions(ctx, []question.Question{dup, q("three"), q("three")}))
			require.NoError(t, g.SaveFailedQuestions(ctx, nil))

			bank, err := g.FailedQuestions(ctx)
			require.NoError(t, err)
			require.Len(t, bank, 3)
			assert.Equal(t, "one", bank[0].Text)
			assert.Equal(t, "two", bank[1].Text)
			assert.Empty(t, bank[1].Explanation)
			assert.Equal(t, "three", bank[2].Text)

			require.NoError(t, g.ClearFailedQuestions(ctx))
			bank, err = g.FailedQuestions(ctx)
			require.NoError(t, err)
			assert.Empty(t, bank)
		})
	}
}

func TestGatewayHistoryCapped(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	g := NewGateway(NewMemoryKV(), WithHistoryLimit(3), WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Hour)
	}))

	for i := 1; i <= 5; i++ {
		snap := session.Snapshot{Questions: []question.Question{q(fmt.Sprintf("exam %d", i))}}
		require.NoError(t, g.SaveExamResult(ctx, snap, grading.Result{FinalGrade: float64(i), Total: 1, Correct: 1}))
	}

	hist, err := g.ExamHistory(ctx)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, 5.0, hist[0].FinalGrade)
	assert.Equal(t, 4.0, hist[1].FinalGrade)
	assert.Equal(t, 3.0, hist[2].FinalGrade)
	assert.True(t, hist[0].Date.After(hist[1].Date))
	assert.Equal(t, "exam 5", hist[0].Questions[0].Text)

	h, ok, err := g.HistoryEntry(ctx, hist[1].ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, hist[1], h)

	_, ok, err = g.HistoryEntry(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGatewayHistoryDefaultLimit(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(sqliteKV(t))
	for i := 0; i < DefaultHistory+5; i++ {
		require.NoError(t, g.SaveExamResult(ctx, session.Snapshot{}, grading.Result{}))
	}
	hist, err := g.ExamHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, hist, DefaultHistory)
}

func TestGatewayRepeatExamConsumedOnRead(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(NewMemoryKV())

	_, ok, err := g.LoadRepeatExam(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, g.SaveRepeatExam(ctx, []question.Question{q("again")}))
	qs, ok, err := g.LoadRepeatExam(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "again", qs[0].Text)

	_, ok, err = g.LoadRepeatExam(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGatewayRecoversFromCorruptBank(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Set(ctx, KeyFailed, []byte("{not json")))
	g := NewGateway(kv)

	_, err := g.FailedQuestions(ctx)
	assert.Error(t, err)

	require.NoError(t, g.SaveFailedQuestions(ctx, []question.Question{q("fresh")}))
	bank, err := g.FailedQuestions(ctx)
	require.NoError(t, err)
	assert.Len(t, bank, 1)
}

func TestGatewayWithMachine(t *testing.T) {
	ctx := context.Background()
	g := NewGateway(NewMemoryKV())
	m := session.NewMachine(g)

	_, err := m.Start([]question.Question{q("one"), q("two")})
	require.NoError(t, err)
	require.NoError(t, m.RecordAnswer(0, "b"))
	require.NoError(t, m.Save(ctx))

	_, ok, err := g.LoadSession(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.Finish(ctx)
	require.NoError(t, err)

	_, ok, err = g.LoadSession(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "finish clears the saved session")

	bank, err := g.FailedQuestions(ctx)
	require.NoError(t, err)
	require.Len(t, bank, 1)
	assert.Equal(t, "one", bank[0].Text)

	hist, err := g.ExamHistory(ctx)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 2, hist[0].Total)
	assert.Equal(t, 1, hist[0].Incorrect)
}
