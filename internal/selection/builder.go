package selection

import (
	"fmt"

	"github.com/mind-engage/mindengage-quiz/internal/catalog"
)

const (
	ModeLaws   = "laws"
	ModeTopics = "topics"
	ModeExam   = "exam"
)

// Request is a catalog-level selection: which laws, topics or exam, how many
// questions, and whether a single item should be taken as a fixed block.
type Request struct {
	Mode       string   `json:"mode"`
	IDs        []string `json:"ids"`
	Count      int      `json:"count"`
	Fixed      bool     `json:"fixed"`
	BlockIndex int      `json:"blockIndex"`
}

// Build translates a Request into a Spec against cat. Block mode applies only
// when exactly one law or topic is selected; otherwise selection is random.
func Build(cat *catalog.Catalog, req Request, blockSize int) (Spec, error) {
	if cat == nil {
		return nil, fmt.Errorf("%w: no catalog", ErrInvalidSpec)
	}
	if len(req.IDs) == 0 {
		return nil, fmt.Errorf("%w: nothing selected", ErrInvalidSpec)
	}
	block := req.Fixed && len(req.IDs) == 1

	switch req.Mode {
	case ModeLaws, "":
		laws := make([]catalog.Law, 0, len(req.IDs))
		for _, id := range req.IDs {
			l, ok := cat.Law(id)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownLaw, id)
			}
			laws = append(laws, l)
		}
		if block {
			return FixedBlock{File: laws[0].File, BlockIndex: req.BlockIndex, BlockSize: blockSize}, nil
		}
		pools := make([]Pool, len(laws))
		for i, l := range laws {
			pools[i] = Pool{File: l.File, Available: l.Total}
		}
		return RandomAcrossSources{Sources: pools, Target: req.Count}, nil

	case ModeTopics:
		s := TopicAggregate{TopicIDs: append([]string(nil), req.IDs...), Target: req.Count}
		if block {
			s.Block = &Block{Index: req.BlockIndex, Size: blockSize}
		}
		return s, nil

	case ModeExam:
		if len(req.IDs) != 1 {
			return nil, fmt.Errorf("%w: exactly one exam must be selected", ErrInvalidSpec)
		}
		return ExamAggregate{ExamID: req.IDs[0]}, nil

	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidSpec, req.Mode)
	}
}
