package source

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mind-engage/mindengage-quiz/internal/question"
)

// FanIn wraps a Repository for the duration of one aggregation so that every
// distinct file is fetched at most once, even when several goroutines ask for
// it concurrently.
type FanIn struct {
	repo  Repository
	group singleflight.Group

	mu    sync.Mutex
	files map[string][]question.Question
}

func NewFanIn(repo Repository) *FanIn {
	return &FanIn{repo: repo, files: map[string][]question.Question{}}
}

func (f *FanIn) FetchAll(ctx context.Context, file string) ([]question.Question, error) {
	if qs, ok := f.cached(file); ok {
		return qs, nil
	}
	v, err, _ := f.group.Do(file, func() (interface{}, error) {
		if qs, ok := f.cached(file); ok {
			return qs, nil
		}
		qs, err := f.repo.FetchAll(ctx, file)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.files[file] = qs
		f.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]question.Question), nil
}

func (f *FanIn) FetchByIndices(ctx context.Context, file string, indices []int) (map[int]question.Question, error) {
	all, err := f.FetchAll(ctx, file)
	if err != nil {
		return nil, err
	}
	return PickIndices(all, indices), nil
}

func (f *FanIn) cached(file string) ([]question.Question, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	qs, ok := f.files[file]
	return qs, ok
}
