package selection

import (
	"encoding/json"
	"fmt"

	"github.com/mind-engage/mindengage-quiz/internal/question"
)

const (
	KindRandom = "random"
	KindBlock  = "block"
	KindTopics = "topics"
	KindExam   = "exam"
	KindReview = "review"
)

// Spec is a selection specification. The set of implementations is closed;
// Resolver dispatches on the concrete type.
type Spec interface {
	Kind() string
	isSpec()
}

// Pool is a whole source file with its advertised question count.
type Pool struct {
	File      string `json:"file"`
	Available int    `json:"available"`
}

// Block addresses the contiguous slice [Index*Size, Index*Size+Size).
type Block struct {
	Index int `json:"index"`
	Size  int `json:"size"`
}

func (b Block) valid() bool { return b.Index >= 0 && b.Size > 0 }

// slice returns a copy of the block's questions; out-of-range blocks are empty
// and the last block may be partial.
func (b Block) slice(all []question.Question) []question.Question {
	start := b.Index * b.Size
	if start >= len(all) {
		return []question.Question{}
	}
	end := start + b.Size
	if end > len(all) {
		end = len(all)
	}
	return append([]question.Question(nil), all[start:end]...)
}

// BlockCount is the number of blocks of size needed to cover total questions.
func BlockCount(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

type RandomAcrossSources struct {
	Sources []Pool
	Target  int
}

type FixedBlock struct {
	File       string
	BlockIndex int
	BlockSize  int
}

type TopicAggregate struct {
	TopicIDs []string
	Target   int    // <= 0 takes every aggregated question
	Block    *Block // nil selects randomly
}

type ExamAggregate struct {
	ExamID string
}

type ReviewSet struct {
	Questions []question.Question
}

func (RandomAcrossSources) Kind() string { return KindRandom }
func (FixedBlock) Kind() string          { return KindBlock }
func (TopicAggregate) Kind() string      { return KindTopics }
func (ExamAggregate) Kind() string       { return KindExam }
func (ReviewSet) Kind() string           { return KindReview }

func (RandomAcrossSources) isSpec() {}
func (FixedBlock) isSpec()          {}
func (TopicAggregate) isSpec()      {}
func (ExamAggregate) isSpec()       {}
func (ReviewSet) isSpec()           {}

// wireSpec is the JSON shape of every Spec, discriminated by kind.
type wireSpec struct {
	Kind       string              `json:"kind"`
	Sources    []Pool              `json:"sources,omitempty"`
	Target     int                 `json:"target,omitempty"`
	File       string              `json:"file,omitempty"`
	BlockIndex *int                `json:"blockIndex,omitempty"`
	BlockSize  int                 `json:"blockSize,omitempty"`
	TopicIDs   []string            `json:"topicIds,omitempty"`
	ExamID     string              `json:"examId,omitempty"`
	Questions  []question.Question `json:"questions,omitempty"`
}

// Decode parses a JSON selection specification.
func Decode(b []byte) (Spec, error) {
	var w wireSpec
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	switch w.Kind {
	case KindRandom:
		return RandomAcrossSources{Sources: w.Sources, Target: w.Target}, nil
	case KindBlock:
		if w.BlockIndex == nil {
			return nil, fmt.Errorf("%w: block requires blockIndex", ErrInvalidSpec)
		}
		return FixedBlock{File: w.File, BlockIndex: *w.BlockIndex, BlockSize: w.BlockSize}, nil
	case KindTopics:
		s := TopicAggregate{TopicIDs: w.TopicIDs, Target: w.Target}
		if w.BlockIndex != nil {
			s.Block = &Block{Index: *w.BlockIndex, Size: w.BlockSize}
		}
		return s, nil
	case KindExam:
		return ExamAggregate{ExamID: w.ExamID}, nil
	case KindReview:
		if err := question.ValidateAll(w.Questions); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSpec, err)
		}
		return ReviewSet{Questions: w.Questions}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, w.Kind)
	}
}
