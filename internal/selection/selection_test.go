package selection

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-quiz/internal/catalog"
	"github.com/mind-engage/mindengage-quiz/internal/question"
	"github.com/mind-engage/mindengage-quiz/internal/source"
)

func mkQuestion(file string, i int) question.Question {
	return question.Question{
		Theme:         file,
		Text:          fmt.Sprintf("%s#%d", file, i),
		Options:       map[string]string{"a": "1", "b": "2", "c": "3", "d": "4"},
		CorrectAnswer: "a",
	}
}

func mkFile(file string, n int) []question.Question {
	qs := make([]question.Question, n)
	for i := range qs {
		qs[i] = mkQuestion(file, i)
	}
	return qs
}

type fakeRepo struct {
	files map[string][]question.Question

	mu    sync.Mutex
	calls map[string]int
}

func newFakeRepo(files map[string][]question.Question) *fakeRepo {
	return &fakeRepo{files: files, calls: map[string]int{}}
}

func (f *fakeRepo) FetchAll(_ context.Context, file string) ([]question.Question, error) {
	f.mu.Lock()
	f.calls[file]++
	f.mu.Unlock()
	qs, ok := f.files[file]
	if !ok {
		return nil, &source.UnavailableError{File: file, Err: errors.New("not found")}
	}
	return qs, nil
}

func (f *fakeRepo) FetchByIndices(ctx context.Context, file string, indices []int) (map[int]question.Question, error) {
	all, err := f.FetchAll(ctx, file)
	if err != nil {
		return nil, err
	}
	return source.PickIndices(all, indices), nil
}

func texts(qs []question.Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Text
	}
	return out
}

func seeded() Option { return WithRand(rand.New(rand.NewPCG(1, 2))) }

func TestAllocateProportional(t *testing.T) {
	counts, err := Allocate([]int{10, 20, 70}, 30)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 6, 21}, counts)
}

func TestAllocateInvariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for n := 0; n < 500; n++ {
		available := make([]int, 1+rng.IntN(6))
		total := 0
		for i := range available {
			available[i] = rng.IntN(40)
			total += available[i]
		}
		if total == 0 {
			continue
		}
		target := rng.IntN(total + 20)

		counts, err := Allocate(available, target)
		require.NoError(t, err)

		sum := 0
		for i, c := range counts {
			require.GreaterOrEqual(t, c, 0)
			if total >= target {
				require.LessOrEqual(t, c, available[i], "available=%v target=%d", available, target)
			}
			sum += c
		}
		require.Equal(t, target, sum, "available=%v", available)
	}
}

func TestAllocateErrors(t *testing.T) {
	_, err := Allocate([]int{0, 0}, 10)
	assert.ErrorIs(t, err, ErrEmptySelection)

	_, err = Allocate(nil, 10)
	assert.ErrorIs(t, err, ErrEmptySelection)

	_, err = Allocate([]int{5}, -1)
	assert.ErrorIs(t, err, ErrInvalidSpec)

	_, err = Allocate([]int{5, -2}, 3)
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestRandomAcrossSourcesExactCount(t *testing.T) {
	repo := newFakeRepo(map[string][]question.Question{
		"a.json": mkFile("a.json", 10),
		"b.json": mkFile("b.json", 20),
		"c.json": mkFile("c.json", 70),
	})
	r := NewResolver(repo, nil, seeded())

	qs, err := r.Resolve(context.Background(), RandomAcrossSources{
		Sources: []Pool{{"a.json", 10}, {"b.json", 20}, {"c.json", 70}},
		Target:  30,
	})
	require.NoError(t, err)
	require.Len(t, qs, 30)

	perFile := map[string]int{}
	seen := map[string]bool{}
	for _, q := range qs {
		perFile[q.Theme]++
		assert.False(t, seen[q.Text], "duplicate %s", q.Text)
		seen[q.Text] = true
	}
	assert.Equal(t, map[string]int{"a.json": 3, "b.json": 6, "c.json": 21}, perFile)
}

func TestRandomAcrossSourcesShortSources(t *testing.T) {
	repo := newFakeRepo(map[string][]question.Question{
		"a.json": mkFile("a.json", 4),
		"b.json": mkFile("b.json", 3),
	})
	r := NewResolver(repo, nil, seeded())

	qs, err := r.Resolve(context.Background(), RandomAcrossSources{
		Sources: []Pool{{"a.json", 4}, {"b.json", 3}},
		Target:  50,
	})
	require.NoError(t, err)
	assert.Len(t, qs, 7)
}

func TestRandomAcrossSourcesSkipsZeroAllocation(t *testing.T) {
	repo := newFakeRepo(map[string][]question.Question{"a.json": mkFile("a.json", 5)})
	r := NewResolver(repo, nil, seeded())

	qs, err := r.Resolve(context.Background(), RandomAcrossSources{
		Sources: []Pool{{"a.json", 5}, {"empty.json", 0}},
		Target:  3,
	})
	require.NoError(t, err)
	assert.Len(t, qs, 3)
	assert.Zero(t, repo.calls["empty.json"])
}

func TestRandomAcrossSourcesFailsFast(t *testing.T) {
	repo := newFakeRepo(map[string][]question.Question{"a.json": mkFile("a.json", 10)})
	r := NewResolver(repo, nil)

	qs, err := r.Resolve(context.Background(), RandomAcrossSources{
		Sources: []Pool{{"a.json", 10}, {"missing.json", 10}},
		Target:  10,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, source.ErrSourceUnavailable))
	assert.Nil(t, qs)
}

func TestRandomAcrossSourcesNoSources(t *testing.T) {
	r := NewResolver(newFakeRepo(nil), nil)
	_, err := r.Resolve(context.Background(), RandomAcrossSources{Target: 10})
	assert.ErrorIs(t, err, ErrEmptySelection)
}

func TestFixedBlockConcatenation(t *testing.T) {
	all := mkFile("law.json", 65)
	repo := newFakeRepo(map[string][]question.Question{"law.json": all})
	r := NewResolver(repo, nil)
	ctx := context.Background()

	const size = 30
	n := BlockCount(len(all), size)
	require.Equal(t, 3, n)

	var joined []question.Question
	for b := 0; b < n; b++ {
		qs, err := r.Resolve(ctx, FixedBlock{File: "law.json", BlockIndex: b, BlockSize: size})
		require.NoError(t, err)
		joined = append(joined, qs...)
	}
	assert.Equal(t, texts(all), texts(joined))

	last, err := r.Resolve(ctx, FixedBlock{File: "law.json", BlockIndex: 2, BlockSize: size})
	require.NoError(t, err)
	assert.Len(t, last, 5)

	past, err := r.Resolve(ctx, FixedBlock{File: "law.json", BlockIndex: 3, BlockSize: size})
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestFixedBlockInvalid(t *testing.T) {
	r := NewResolver(newFakeRepo(nil), nil)
	for _, s := range []FixedBlock{
		{File: "x.json", BlockIndex: 0, BlockSize: 0},
		{File: "x.json", BlockIndex: -1, BlockSize: 10},
	} {
		_, err := r.Resolve(context.Background(), s)
		assert.ErrorIs(t, err, ErrInvalidSpec)
	}
}

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Laws: []catalog.Law{
			{ID: "ce", Name: "Constitución", File: "A.json", Total: 10},
			{ID: "lpac", Name: "LPAC", File: "B.json", Total: 5},
		},
		Topics: []catalog.Definition{
			{ID: "t1", Name: "Tema 1", Sources: []catalog.SourceRef{
				{File: "A.json", Indices: []int{7, 1, 3}},
				{File: "B.json", Indices: []int{0, 4}},
			}},
			{ID: "t2", Name: "Tema 2", Sources: []catalog.SourceRef{
				{File: "B.json", Indices: []int{4, 2}},
				{File: "A.json", Indices: []int{1, 9, 42}},
			}},
		},
		Exams: []catalog.Definition{
			{ID: "2023", Name: "Examen 2023", Sources: []catalog.SourceRef{
				{File: "A.json", Indices: []int{5, 2}},
				{File: "B.json", Indices: []int{1}},
				{File: "A.json", Indices: []int{2}},
			}},
			{ID: "broken", Sources: []catalog.SourceRef{{File: "gone.json", Indices: []int{0}}}},
		},
	}
}

func testRepo() *fakeRepo {
	return newFakeRepo(map[string][]question.Question{
		"A.json": mkFile("A.json", 10),
		"B.json": mkFile("B.json", 5),
	})
}

func TestExamAggregateOrder(t *testing.T) {
	repo := testRepo()
	r := NewResolver(repo, testCatalog())

	qs, err := r.Resolve(context.Background(), ExamAggregate{ExamID: "2023"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A.json#2", "A.json#5", "B.json#1"}, texts(qs))
	assert.Equal(t, 1, repo.calls["A.json"])
	assert.Equal(t, 1, repo.calls["B.json"])
}

func TestExamAggregateErrors(t *testing.T) {
	r := NewResolver(testRepo(), testCatalog())

	_, err := r.Resolve(context.Background(), ExamAggregate{ExamID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownExam)

	_, err = r.Resolve(context.Background(), ExamAggregate{ExamID: "broken"})
	assert.ErrorIs(t, err, source.ErrSourceUnavailable)
}

func TestTopicAggregateBlockIsDeterministic(t *testing.T) {
	r := NewResolver(testRepo(), testCatalog())
	spec := TopicAggregate{TopicIDs: []string{"t1", "t2"}, Block: &Block{Index: 0, Size: 4}}

	first, err := r.Resolve(context.Background(), spec)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), spec)
	require.NoError(t, err)

	// A.json first referenced, indices {1,3,7,9} (42 is out of range), then B.json {0,2,4}
	assert.Equal(t, []string{"A.json#1", "A.json#3", "A.json#7", "A.json#9"}, texts(first))
	assert.Equal(t, texts(first), texts(second))

	rest, err := r.Resolve(context.Background(), TopicAggregate{TopicIDs: []string{"t1", "t2"}, Block: &Block{Index: 1, Size: 4}})
	require.NoError(t, err)
	assert.Equal(t, []string{"B.json#0", "B.json#2", "B.json#4"}, texts(rest))
}

func TestTopicAggregateRandom(t *testing.T) {
	r := NewResolver(testRepo(), testCatalog(), seeded())

	qs, err := r.Resolve(context.Background(), TopicAggregate{TopicIDs: []string{"t1", "t2"}, Target: 3})
	require.NoError(t, err)
	assert.Len(t, qs, 3)

	all, err := r.Resolve(context.Background(), TopicAggregate{TopicIDs: []string{"t1", "t2"}})
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"A.json#1", "A.json#3", "A.json#7", "A.json#9", "B.json#0", "B.json#2", "B.json#4"},
		texts(all))
}

func TestTopicAggregateErrors(t *testing.T) {
	r := NewResolver(testRepo(), testCatalog())

	_, err := r.Resolve(context.Background(), TopicAggregate{})
	assert.ErrorIs(t, err, ErrInvalidSpec)

	_, err = r.Resolve(context.Background(), TopicAggregate{TopicIDs: []string{"t1", "zz"}})
	assert.ErrorIs(t, err, ErrUnknownTopic)

	_, err = r.Resolve(context.Background(), TopicAggregate{TopicIDs: []string{"t1"}, Block: &Block{Size: 0}})
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestReviewSetIdentity(t *testing.T) {
	in := mkFile("failed", 3)
	r := NewResolver(nil, nil)

	qs, err := r.Resolve(context.Background(), ReviewSet{Questions: in})
	require.NoError(t, err)
	assert.Equal(t, in, qs)

	qs[0].Text = "changed"
	assert.Equal(t, "failed#0", in[0].Text)
}

func TestReviewSetRejectsInvalidQuestions(t *testing.T) {
	bad := mkFile("failed", 2)
	bad[1].Options = nil

	_, err := NewResolver(nil, nil).Resolve(context.Background(), ReviewSet{Questions: bad})
	assert.ErrorIs(t, err, ErrInvalidSpec)
	assert.ErrorIs(t, err, question.ErrInvalidQuestion)
}

func TestResolveNilSpec(t *testing.T) {
	_, err := NewResolver(nil, nil).Resolve(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidSpec)
}

func TestDecode(t *testing.T) {
	s, err := Decode([]byte(`{"kind":"random","sources":[{"file":"a.json","available":10}],"target":5}`))
	require.NoError(t, err)
	assert.Equal(t, RandomAcrossSources{Sources: []Pool{{"a.json", 10}}, Target: 5}, s)

	s, err = Decode([]byte(`{"kind":"block","file":"a.json","blockIndex":0,"blockSize":30}`))
	require.NoError(t, err)
	assert.Equal(t, FixedBlock{File: "a.json", BlockIndex: 0, BlockSize: 30}, s)

	s, err = Decode([]byte(`{"kind":"topics","topicIds":["t1"],"blockIndex":2,"blockSize":30}`))
	require.NoError(t, err)
	assert.Equal(t, TopicAggregate{TopicIDs: []string{"t1"}, Block: &Block{Index: 2, Size: 30}}, s)

	s, err = Decode([]byte(`{"kind":"review","questions":[{"text":"x","options":{"a":"1","b":"2","c":"3","d":"4"},"correctAnswer":"C"}]}`))
	require.NoError(t, err)
	assert.Len(t, s.(ReviewSet).Questions, 1)

	for _, bad := range []string{
		`{"kind":"block","file":"a.json"}`,
		`{"kind":"bogus"}`,
		`not json`,
		`{"kind":"review","questions":[{"text":"no options","correctAnswer":"z"}]}`,
	} {
		_, err := Decode([]byte(bad))
		assert.ErrorIs(t, err, ErrInvalidSpec, bad)
	}
}

func TestBuild(t *testing.T) {
	cat := testCatalog()

	tests := []struct {
		name string
		req  Request
		want Spec
		err  error
	}{
		{
			name: "random laws",
			req:  Request{Mode: ModeLaws, IDs: []string{"ce", "lpac"}, Count: 20},
			want: RandomAcrossSources{Sources: []Pool{{"A.json", 10}, {"B.json", 5}}, Target: 20},
		},
		{
			name: "fixed law block",
			req:  Request{Mode: ModeLaws, IDs: []string{"ce"}, Fixed: true, BlockIndex: 2},
			want: FixedBlock{File: "A.json", BlockIndex: 2, BlockSize: 30},
		},
		{
			name: "fixed ignored for several laws",
			req:  Request{Mode: ModeLaws, IDs: []string{"ce", "lpac"}, Count: 5, Fixed: true},
			want: RandomAcrossSources{Sources: []Pool{{"A.json", 10}, {"B.json", 5}}, Target: 5},
		},
		{
			name: "topic block",
			req:  Request{Mode: ModeTopics, IDs: []string{"t1"}, Fixed: true, BlockIndex: 1},
			want: TopicAggregate{TopicIDs: []string{"t1"}, Block: &Block{Index: 1, Size: 30}},
		},
		{
			name: "exam",
			req:  Request{Mode: ModeExam, IDs: []string{"2023"}},
			want: ExamAggregate{ExamID: "2023"},
		},
		{name: "unknown law", req: Request{Mode: ModeLaws, IDs: []string{"x"}}, err: ErrUnknownLaw},
		{name: "nothing selected", req: Request{Mode: ModeLaws}, err: ErrInvalidSpec},
		{name: "two exams", req: Request{Mode: ModeExam, IDs: []string{"a", "b"}}, err: ErrInvalidSpec},
		{name: "bad mode", req: Request{Mode: "x", IDs: []string{"a"}}, err: ErrInvalidSpec},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Build(cat, tc.req, 30)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
