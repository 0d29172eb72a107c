// Package catalog loads the definitions the selection layer draws from:
// laws (whole source files), topics and exams (sparse index subsets).
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/source"
)

// Law is a whole source file offered for random or block selection.
type Law struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	File  string `json:"file"`
	Total int    `json:"total"`
}

// SourceRef identifies question positions within a source file.
type SourceRef struct {
	File    string `json:"file"`
	Indices []int  `json:"indices"`
}

// Definition is a topic or exam: a named union of source references.
type Definition struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Sources []SourceRef `json:"sources"`
}

// Total is the number of index references, before deduplication.
func (d Definition) Total() int {
	n := 0
	for _, s := range d.Sources {
		n += len(s.Indices)
	}
	return n
}

type Catalog struct {
	Laws   []Law        `json:"laws"`
	Topics []Definition `json:"topics"`
	Exams  []Definition `json:"exams"`
}

func (c *Catalog) Law(id string) (Law, bool) {
	for _, l := range c.Laws {
		if l.ID == id {
			return l, true
		}
	}
	return Law{}, false
}

func (c *Catalog) Topic(id string) (Definition, bool) { return find(c.Topics, id) }

func (c *Catalog) Exam(id string) (Definition, bool) { return find(c.Exams, id) }

func find(defs []Definition, id string) (Definition, bool) {
	for _, d := range defs {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// Paths names the catalog files inside the data source. An empty path skips that file.
type Paths struct {
	Laws   string
	Topics string
	Exams  string
}

func DefaultPaths() Paths {
	return Paths{Laws: "config.json", Topics: "data/topics.json", Exams: "data/exams.json"}
}

// Load reads the catalog files through o.
func Load(ctx context.Context, o source.Opener, p Paths) (*Catalog, error) {
	c := &Catalog{}
	if p.Laws != "" {
		var doc struct {
			Tests []Law `json:"tests"`
		}
		if err := readJSON(ctx, o, p.Laws, &doc); err != nil {
			return nil, err
		}
		c.Laws = doc.Tests
	}
	if p.Topics != "" {
		if err := readJSON(ctx, o, p.Topics, &c.Topics); err != nil {
			return nil, err
		}
	}
	if p.Exams != "" {
		if err := readJSON(ctx, o, p.Exams, &c.Exams); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func readJSON(ctx context.Context, o source.Opener, file string, dst interface{}) error {
	rc, err := o.Open(ctx, file)
	if err != nil {
		return &source.UnavailableError{File: file, Err: err}
	}
	defer rc.Close()
	if err := json.NewDecoder(rc).Decode(dst); err != nil {
		return &source.UnavailableError{File: file, Err: err}
	}
	return nil
}

// --- legacy key support ---

func (l *Law) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID    string  `json:"id"`
		Name  string  `json:"name"`
		File  string  `json:"file"`
		Total flexInt `json:"total"`

		Nombre         string  `json:"nombre"`
		Valor          string  `json:"valor"`
		TotalPreguntas flexInt `json:"total_preguntas"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*l = Law{ID: raw.ID, Name: or(raw.Name, raw.Nombre), File: or(raw.File, raw.Valor), Total: int(raw.Total)}
	if l.Total == 0 {
		l.Total = int(raw.TotalPreguntas)
	}
	return nil
}

func (d *Definition) UnmarshalJSON(b []byte) error {
	type ref struct {
		File    string `json:"file"`
		Archivo string `json:"archivo"`
		Indices []int  `json:"indices"`
	}
	var raw struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Nombre  string `json:"nombre"`
		Sources []ref  `json:"sources"`
		Fuentes []ref  `json:"fuentes"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	refs := raw.Sources
	if len(refs) == 0 {
		refs = raw.Fuentes
	}
	*d = Definition{ID: raw.ID, Name: or(raw.Name, raw.Nombre)}
	for _, r := range refs {
		d.Sources = append(d.Sources, SourceRef{File: or(r.File, r.Archivo), Indices: r.Indices})
	}
	return nil
}

// flexInt decodes both 12 and "12".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid count %s: %w", b, err)
	}
	*f = flexInt(v)
	return nil
}

func or(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
