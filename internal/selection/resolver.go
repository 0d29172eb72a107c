package selection

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-quiz/internal/catalog"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
	"github.com/mind-engage/mindengage-quiz/internal/question"
	"github.com/mind-engage/mindengage-quiz/internal/source"
)

var (
	ErrEmptySelection = errors.New("no questions available for selection")
	ErrInvalidSpec    = errors.New("invalid selection spec")
	ErrUnknownLaw     = errors.New("unknown law")
	ErrUnknownTopic   = errors.New("unknown topic")
	ErrUnknownExam    = errors.New("unknown exam")
)

// Definitions looks up topic and exam definitions; *catalog.Catalog satisfies it.
type Definitions interface {
	Topic(id string) (catalog.Definition, bool)
	Exam(id string) (catalog.Definition, bool)
}

// Resolver turns a Spec into a concrete, ordered question list.
type Resolver struct {
	repo source.Repository
	defs Definitions
	log  *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand // nil uses the global source
}

type Option func(*Resolver)

// WithRand fixes the random source, for reproducible tests.
func WithRand(r *rand.Rand) Option { return func(rs *Resolver) { rs.rng = r } }

func WithLogger(l *zap.Logger) Option { return func(rs *Resolver) { rs.log = l } }

func NewResolver(repo source.Repository, defs Definitions, opts ...Option) *Resolver {
	r := &Resolver{repo: repo, defs: defs, log: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve produces the question list for spec. Random strategies give a
// different order or subset on every call. Fetch failures abort the whole
// resolution; partial results are never returned.
func (r *Resolver) Resolve(ctx context.Context, spec Spec) ([]question.Question, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: nil spec", ErrInvalidSpec)
	}
	qs, err := r.resolve(ctx, spec)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
		r.log.Warn("selection failed", zap.String("kind", spec.Kind()), zap.Error(err))
	case len(qs) == 0:
		outcome = "empty"
	}
	metrics.SelectionsResolved.WithLabelValues(spec.Kind(), outcome).Inc()
	if err != nil {
		return nil, err
	}
	r.log.Debug("selection resolved", zap.String("kind", spec.Kind()), zap.Int("questions", len(qs)))
	return qs, nil
}

func (r *Resolver) resolve(ctx context.Context, spec Spec) ([]question.Question, error) {
	switch s := spec.(type) {
	case RandomAcrossSources:
		return r.randomAcrossSources(ctx, s)
	case FixedBlock:
		return r.fixedBlock(ctx, s)
	case TopicAggregate:
		return r.topicAggregate(ctx, s)
	case ExamAggregate:
		return r.examAggregate(ctx, s)
	case ReviewSet:
		if err := question.ValidateAll(s.Questions); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
		}
		return append([]question.Question(nil), s.Questions...), nil
	default:
		return nil, fmt.Errorf("%w: unsupported spec %T", ErrInvalidSpec, spec)
	}
}

func (r *Resolver) randomAcrossSources(ctx context.Context, s RandomAcrossSources) ([]question.Question, error) {
	if len(s.Sources) == 0 {
		return nil, ErrEmptySelection
	}
	available := make([]int, len(s.Sources))
	for i, p := range s.Sources {
		available[i] = p.Available
	}
	counts, err := Allocate(available, s.Target)
	if err != nil {
		return nil, err
	}

	fan := source.NewFanIn(r.repo)
	sets := make([][]question.Question, len(s.Sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range s.Sources {
		if counts[i] == 0 {
			continue
		}
		g.Go(func() error {
			qs, err := fan.FetchAll(gctx, p.File)
			if err != nil {
				return err
			}
			sets[i] = qs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]question.Question, 0, s.Target)
	for i, qs := range sets {
		pool := append([]question.Question(nil), qs...)
		r.shuffle(pool)
		out = append(out, pool[:min(counts[i], len(pool))]...)
	}
	r.shuffle(out)
	return out, nil
}

func (r *Resolver) fixedBlock(ctx context.Context, s FixedBlock) ([]question.Question, error) {
	b := Block{Index: s.BlockIndex, Size: s.BlockSize}
	if !b.valid() {
		return nil, fmt.Errorf("%w: block %d of size %d", ErrInvalidSpec, s.BlockIndex, s.BlockSize)
	}
	all, err := r.repo.FetchAll(ctx, s.File)
	if err != nil {
		return nil, err
	}
	return b.slice(all), nil
}

func (r *Resolver) topicAggregate(ctx context.Context, s TopicAggregate) ([]question.Question, error) {
	if len(s.TopicIDs) == 0 {
		return nil, fmt.Errorf("%w: no topics", ErrInvalidSpec)
	}
	if s.Block != nil && !s.Block.valid() {
		return nil, fmt.Errorf("%w: block %d of size %d", ErrInvalidSpec, s.Block.Index, s.Block.Size)
	}
	defs := make([]catalog.Definition, 0, len(s.TopicIDs))
	for _, id := range s.TopicIDs {
		var (
			d  catalog.Definition
			ok bool
		)
		if r.defs != nil {
			d, ok = r.defs.Topic(id)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, id)
		}
		defs = append(defs, d)
	}

	qs, err := r.aggregate(ctx, defs)
	if err != nil {
		return nil, err
	}
	if s.Block != nil {
		// unshuffled so "Test N" is the same set every time
		return s.Block.slice(qs), nil
	}
	r.shuffle(qs)
	if s.Target > 0 && s.Target < len(qs) {
		qs = qs[:s.Target]
	}
	return qs, nil
}

func (r *Resolver) examAggregate(ctx context.Context, s ExamAggregate) ([]question.Question, error) {
	var (
		d  catalog.Definition
		ok bool
	)
	if r.defs != nil {
		d, ok = r.defs.Exam(s.ExamID)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExam, s.ExamID)
	}
	return r.aggregate(ctx, []catalog.Definition{d})
}

// aggregate unions the definitions' references per file and fetches each
// distinct file once, in parallel. The result is in file-grouping order:
// files in order of first reference, indices ascending within a file.
func (r *Resolver) aggregate(ctx context.Context, defs []catalog.Definition) ([]question.Question, error) {
	var files []string
	byFile := map[string]map[int]struct{}{}
	for _, d := range defs {
		for _, ref := range d.Sources {
			set, ok := byFile[ref.File]
			if !ok {
				set = map[int]struct{}{}
				byFile[ref.File] = set
				files = append(files, ref.File)
			}
			for _, idx := range ref.Indices {
				if idx >= 0 {
					set[idx] = struct{}{}
				}
			}
		}
	}

	fan := source.NewFanIn(r.repo)
	picked := make([][]question.Question, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, file := range files {
		indices := sortedIndices(byFile[file])
		g.Go(func() error {
			m, err := fan.FetchByIndices(gctx, file, indices)
			if err != nil {
				return err
			}
			qs := make([]question.Question, 0, len(m))
			for _, idx := range indices {
				if q, ok := m[idx]; ok {
					qs = append(qs, q)
				}
			}
			picked[i] = qs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []question.Question
	for _, qs := range picked {
		out = append(out, qs...)
	}
	if out == nil {
		out = []question.Question{}
	}
	return out, nil
}

func (r *Resolver) shuffle(qs []question.Question) {
	swap := func(i, j int) { qs[i], qs[j] = qs[j], qs[i] }
	if r.rng == nil {
		rand.Shuffle(len(qs), swap)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rng.Shuffle(len(qs), swap)
}

func sortedIndices(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for idx := range set {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
