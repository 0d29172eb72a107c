package question

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// OptionCount is the number of options every question must carry.
const OptionCount = 4

var ErrInvalidQuestion = errors.New("invalid question")

// Question is a single multiple-choice item as stored in a source file.
// Values are treated as immutable once fetched.
type Question struct {
	Theme         string            `json:"theme"`
	Text          string            `json:"text"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correctAnswer"` // lowercased option key
	Explanation   string            `json:"explanation,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
}

// UnmarshalJSON accepts the canonical keys as well as the keys used by the
// older Spanish data files (tema, pregunta, opciones, respuestaCorrecta, explicacion).
func (q *Question) UnmarshalJSON(b []byte) error {
	var raw struct {
		Theme         string            `json:"theme"`
		Text          string            `json:"text"`
		Options       map[string]string `json:"options"`
		CorrectAnswer string            `json:"correctAnswer"`
		Explanation   string            `json:"explanation"`
		Tags          []string          `json:"tags"`

		Tema              string            `json:"tema"`
		Pregunta          string            `json:"pregunta"`
		Opciones          map[string]string `json:"opciones"`
		RespuestaCorrecta string            `json:"respuestaCorrecta"`
		Explicacion       string            `json:"explicacion"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	opts := raw.Options
	if len(opts) == 0 {
		opts = raw.Opciones
	}
	normalized := make(map[string]string, len(opts))
	for k, v := range opts {
		normalized[NormalizeKey(k)] = v
	}
	*q = Question{
		Theme:         firstNonEmpty(raw.Theme, raw.Tema),
		Text:          firstNonEmpty(raw.Text, raw.Pregunta),
		Options:       normalized,
		CorrectAnswer: NormalizeKey(firstNonEmpty(raw.CorrectAnswer, raw.RespuestaCorrecta)),
		Explanation:   firstNonEmpty(raw.Explanation, raw.Explicacion),
		Tags:          raw.Tags,
	}
	return nil
}

// Validate enforces the ingestion invariants: exactly OptionCount non-empty
// option keys and a correct answer that names one of them.
func Validate(q Question) error {
	if len(q.Options) != OptionCount {
		return fmt.Errorf("%w: want %d options, got %d", ErrInvalidQuestion, OptionCount, len(q.Options))
	}
	for k := range q.Options {
		if k == "" {
			return fmt.Errorf("%w: empty option key", ErrInvalidQuestion)
		}
	}
	if _, ok := q.Options[q.CorrectAnswer]; !ok {
		return fmt.Errorf("%w: correct answer %q is not an option", ErrInvalidQuestion, q.CorrectAnswer)
	}
	return nil
}

// ValidateAll validates a decoded file, reporting the first offending position.
func ValidateAll(qs []Question) error {
	for i, q := range qs {
		if err := Validate(q); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}

// IsCorrect reports whether key answers q correctly (case-insensitive).
func (q Question) IsCorrect(key string) bool {
	key = NormalizeKey(key)
	return key != "" && key == NormalizeKey(q.CorrectAnswer)
}

// OptionKeys returns the option keys in display order.
func (q Question) OptionKeys() []string {
	keys := make([]string, 0, len(q.Options))
	for k := range q.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func NormalizeKey(k string) string { return strings.ToLower(strings.TrimSpace(k)) }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
