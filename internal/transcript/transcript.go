// Package transcript reads and writes the XML export of a quiz session.
package transcript

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/question"
	"github.com/mind-engage/mindengage-quiz/internal/session"
)

var ErrMalformedTranscript = errors.New("malformed transcript")

const ContentType = "application/xml"

type document struct {
	XMLName   xml.Name  `xml:"quiz_session"`
	Metadata  metadata  `xml:"metadata"`
	Questions questions `xml:"questions"`
}

type metadata struct {
	Date           string `xml:"date"`
	TotalQuestions int    `xml:"total_questions"`
}

type questions struct {
	Items []item `xml:"question"`
}

type item struct {
	Index         string   `xml:"index,attr"`
	Text          *cdata   `xml:"text"`
	Theme         *cdata   `xml:"theme"`
	CorrectAnswer *string  `xml:"correct_answer"`
	UserAnswer    string   `xml:"user_answer"`
	Explanation   *cdata   `xml:"explanation"`
	Options       *options `xml:"options"`
	Tags          *tags    `xml:"tags,omitempty"`
}

type tags struct {
	Items []string `xml:"tag"`
}

type cdata struct {
	Value string `xml:",cdata"`
}

type options struct {
	Items []option `xml:"option"`
}

type option struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",cdata"`
}

// Filename is the download name for a transcript exported at now.
func Filename(now time.Time) string {
	return "opotest_session_" + now.Format("2006-01-02") + ".xml"
}

// Encode writes s as an XML transcript dated now.
func Encode(w io.Writer, s session.Snapshot, now time.Time) error {
	doc := document{
		Metadata: metadata{
			Date:           now.UTC().Format(time.RFC3339),
			TotalQuestions: len(s.Questions),
		},
	}
	for i, q := range s.Questions {
		answer := q.CorrectAnswer
		it := item{
			Index:         strconv.Itoa(i),
			Text:          &cdata{q.Text},
			Theme:         &cdata{q.Theme},
			CorrectAnswer: &answer,
			UserAnswer:    s.Answers[i],
			Explanation:   &cdata{q.Explanation},
			Options:       &options{},
		}
		if len(q.Tags) > 0 {
			it.Tags = &tags{Items: q.Tags}
		}
		for _, k := range q.OptionKeys() {
			it.Options.Items = append(it.Options.Items, option{Key: k, Value: q.Options[k]})
		}
		doc.Questions.Items = append(doc.Questions.Items, it)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return enc.Flush()
}

// Decode parses a transcript. Questions are ordered by their index
// attribute and answers are keyed by the resulting position. Any structural
// problem fails the whole import.
func Decode(r io.Reader) (session.Snapshot, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return session.Snapshot{}, malformed("%v", err)
	}

	type indexed struct {
		idx    int
		q      question.Question
		answer string
	}
	items := make([]indexed, 0, len(doc.Questions.Items))
	seen := map[int]bool{}
	for n, it := range doc.Questions.Items {
		idx, err := strconv.Atoi(strings.TrimSpace(it.Index))
		if err != nil || idx < 0 {
			return session.Snapshot{}, malformed("question %d: bad index %q", n, it.Index)
		}
		if seen[idx] {
			return session.Snapshot{}, malformed("question %d: duplicate index %d", n, idx)
		}
		seen[idx] = true

		q, err := it.question()
		if err != nil {
			return session.Snapshot{}, malformed("question %d: %v", idx, err)
		}
		items = append(items, indexed{idx: idx, q: q, answer: question.NormalizeKey(it.UserAnswer)})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].idx < items[j].idx })

	s := session.Snapshot{
		Questions: make([]question.Question, len(items)),
		Answers:   map[int]string{},
	}
	for pos, it := range items {
		s.Questions[pos] = it.q
		if it.answer != "" {
			s.Answers[pos] = it.answer
		}
	}
	return s, nil
}

func (it item) question() (question.Question, error) {
	switch {
	case it.Text == nil:
		return question.Question{}, errors.New("missing text")
	case it.Theme == nil:
		return question.Question{}, errors.New("missing theme")
	case it.CorrectAnswer == nil:
		return question.Question{}, errors.New("missing correct_answer")
	case it.Options == nil:
		return question.Question{}, errors.New("missing options")
	}
	q := question.Question{
		Theme:         it.Theme.Value,
		Text:          it.Text.Value,
		CorrectAnswer: question.NormalizeKey(*it.CorrectAnswer),
		Options:       make(map[string]string, len(it.Options.Items)),
	}
	if it.Explanation != nil {
		q.Explanation = it.Explanation.Value
	}
	if it.Tags != nil && len(it.Tags.Items) > 0 {
		q.Tags = it.Tags.Items
	}
	for _, o := range it.Options.Items {
		k := question.NormalizeKey(o.Key)
		if _, dup := q.Options[k]; dup {
			return question.Question{}, fmt.Errorf("duplicate option %q", k)
		}
		q.Options[k] = o.Value
	}
	if err := question.Validate(q); err != nil {
		return question.Question{}, err
	}
	return q, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedTranscript, fmt.Sprintf(format, args...))
}
