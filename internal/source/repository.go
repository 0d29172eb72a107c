package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-quiz/internal/metrics"
	"github.com/mind-engage/mindengage-quiz/internal/question"
)

var ErrSourceUnavailable = errors.New("source unavailable")

// UnavailableError reports a file that could not be read or parsed.
// It matches ErrSourceUnavailable under errors.Is.
type UnavailableError struct {
	File string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("source %q unavailable: %v", e.File, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrSourceUnavailable }

// Repository gives access to the questions of a source file.
type Repository interface {
	FetchAll(ctx context.Context, file string) ([]question.Question, error)
	// FetchByIndices returns the questions at the given positions. Positions
	// outside the file are skipped, not reported.
	FetchByIndices(ctx context.Context, file string, indices []int) (map[int]question.Question, error)
}

// Opener opens a raw data file by path.
type Opener interface {
	Open(ctx context.Context, file string) (io.ReadCloser, error)
}

// FileRepository decodes JSON question arrays read through an Opener.
type FileRepository struct {
	open Opener
	log  *zap.Logger
}

func NewFileRepository(o Opener, log *zap.Logger) *FileRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileRepository{open: o, log: log}
}

// Open exposes the underlying opener so catalog files can share the data source.
func (r *FileRepository) Open(ctx context.Context, file string) (io.ReadCloser, error) {
	return r.open.Open(ctx, file)
}

func (r *FileRepository) FetchAll(ctx context.Context, file string) ([]question.Question, error) {
	start := time.Now()
	qs, err := r.fetch(ctx, file)
	if err != nil {
		metrics.SourceFetches.WithLabelValues("error").Inc()
		r.log.Warn("source fetch failed", zap.String("file", file), zap.Error(err))
		return nil, err
	}
	metrics.SourceFetches.WithLabelValues("ok").Inc()
	r.log.Debug("source fetched",
		zap.String("file", file),
		zap.Int("questions", len(qs)),
		zap.Duration("took", time.Since(start)))
	return qs, nil
}

func (r *FileRepository) FetchByIndices(ctx context.Context, file string, indices []int) (map[int]question.Question, error) {
	all, err := r.FetchAll(ctx, file)
	if err != nil {
		return nil, err
	}
	return PickIndices(all, indices), nil
}

func (r *FileRepository) fetch(ctx context.Context, file string) ([]question.Question, error) {
	rc, err := r.open.Open(ctx, file)
	if err != nil {
		return nil, &UnavailableError{File: file, Err: err}
	}
	defer rc.Close()
	return Decode(file, rc)
}

// Decode parses and validates a source file. Any invalid question makes the
// whole file unavailable.
func Decode(file string, rd io.Reader) ([]question.Question, error) {
	var qs []question.Question
	if err := json.NewDecoder(rd).Decode(&qs); err != nil {
		return nil, &UnavailableError{File: file, Err: err}
	}
	if err := question.ValidateAll(qs); err != nil {
		return nil, &UnavailableError{File: file, Err: err}
	}
	return qs, nil
}

// PickIndices selects positions from all, skipping those out of range.
func PickIndices(all []question.Question, indices []int) map[int]question.Question {
	out := make(map[int]question.Question, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(all) {
			continue
		}
		out[idx] = all[idx]
	}
	return out
}
