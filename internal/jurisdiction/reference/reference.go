// Package reference holds the read-only place tables the classifier matches
// provider candidates against.
package reference

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"civic/internal/civic/models"
)

//go:embed places.yaml
var embeddedPlaces []byte

// Place is one row of a state table.
type Place struct {
	Name   string                     `yaml:"name"`
	County string                     `yaml:"county"`
	Status models.IncorporationStatus `yaml:"status"`
}

// State is the table for one state.
type State struct {
	Code   string
	Name   string  `yaml:"name"`
	Places []Place `yaml:"places"`

	exact map[string]Place
	fuzzy map[string]Place
}

// Tables is immutable after Load.
type Tables struct {
	Version string
	states  map[string]*State
	byName  map[string]string
}

type document struct {
	Version string            `yaml:"version"`
	States  map[string]*State `yaml:"states"`
}

// Default returns the embedded tables.
func Default() (*Tables, error) {
	return Parse(embeddedPlaces)
}

// LoadFile parses tables from a YAML file with the embedded layout.
func LoadFile(path string) (*Tables, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference tables: %w", err)
	}
	return Parse(b)
}

// Parse builds lookup indexes from YAML.
func Parse(b []byte) (*Tables, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode reference tables: %w", err)
	}
	t := &Tables{
		Version: doc.Version,
		states:  make(map[string]*State, len(doc.States)),
		byName:  make(map[string]string, len(doc.States)),
	}
	for code, st := range doc.States {
		code = strings.ToUpper(strings.TrimSpace(code))
		st.Code = code
		st.exact = make(map[string]Place, len(st.Places))
		st.fuzzy = make(map[string]Place, len(st.Places))
		for i, p := range st.Places {
			switch p.Status {
			case models.StatusIncorporatedCity, models.StatusCensusDesignatedPlace:
			default:
				return nil, fmt.Errorf("state %s place %d: status must be incorporated_city or census_designated_place, got %q", code, i, p.Status)
			}
			if p.County == "" {
				return nil, fmt.Errorf("state %s place %q: county is required", code, p.Name)
			}
			st.exact[ExactKey(p.Name)] = p
			st.fuzzy[FuzzyKey(p.Name)] = p
		}
		t.states[code] = st
		if st.Name != "" {
			t.byName[ExactKey(st.Name)] = code
		}
	}
	return t, nil
}

// StateCode resolves a two-letter code or full state name to its code.
func (t *Tables) StateCode(s string) (string, bool) {
	up := strings.ToUpper(strings.TrimSpace(s))
	if _, ok := t.states[up]; ok {
		return up, true
	}
	code, ok := t.byName[ExactKey(s)]
	return code, ok
}

// State returns the table for a state code.
func (t *Tables) State(code string) (*State, bool) {
	st, ok := t.states[strings.ToUpper(code)]
	return st, ok
}

// StateName returns the full name for a covered state code.
func (t *Tables) StateName(code string) string {
	if st, ok := t.State(code); ok {
		return st.Name
	}
	return ""
}

// MatchKind says how a place name matched.
type MatchKind int

const (
	NoMatch MatchKind = iota
	FuzzyMatch
	ExactMatch
)

// Match looks a place name up in the state table.
func (s *State) Match(name string) (Place, MatchKind) {
	if p, ok := s.exact[ExactKey(name)]; ok {
		return p, ExactMatch
	}
	if p, ok := s.fuzzy[FuzzyKey(name)]; ok {
		return p, FuzzyMatch
	}
	return Place{}, NoMatch
}

var spaces = regexp.MustCompile(`\s+`)

// ExactKey is case and whitespace insensitive.
func ExactKey(s string) string {
	return spaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

var abbreviations = map[string]string{
	"st":  "saint",
	"ste": "sainte",
	"ft":  "fort",
	"mt":  "mount",
}

// FuzzyKey additionally strips "City of"/"Town of" prefixes, a trailing
// " city"/" town", punctuation and common abbreviations.
func FuzzyKey(s string) string {
	k := ExactKey(s)
	for _, prefix := range []string{"city of ", "town of ", "village of "} {
		k = strings.TrimPrefix(k, prefix)
	}
	for _, suffix := range []string{" city", " town", " village"} {
		k = strings.TrimSuffix(k, suffix)
	}
	k = strings.NewReplacer("-", " ", ".", " ", "'", "").Replace(k)
	words := strings.Fields(k)
	for i, w := range words {
		if full, ok := abbreviations[w]; ok {
			words[i] = full
		}
	}
	return strings.Join(words, " ")
}
