package quality

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"civic/pkg/domain"
	platformstrings "civic/pkg/platform/strings"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rules is the externally configurable ruleset. It is data: the gate reads a
// compiled copy and never mutates it.
type Rules struct {
	Version                 string                   `koanf:"version" yaml:"version"`
	PlaceholderNames        []string                 `koanf:"placeholder_names" yaml:"placeholder_names"`
	PlaceholderTokens       []string                 `koanf:"placeholder_tokens" yaml:"placeholder_tokens"`
	PlaceholderEmailDomains []string                 `koanf:"placeholder_email_domains" yaml:"placeholder_email_domains"`
	PlaceholderPhones       []string                 `koanf:"placeholder_phones" yaml:"placeholder_phones"`
	GenericPlaces           []string                 `koanf:"generic_places" yaml:"generic_places"`
	CountySuffixes          map[string][]string      `koanf:"county_suffixes" yaml:"county_suffixes"`
	StaleAfter              map[string]time.Duration `koanf:"stale_after" yaml:"stale_after"`
	MinProvenanceConfidence float64                  `koanf:"min_provenance_confidence" yaml:"min_provenance_confidence"`
	Fallback                FallbackRules            `koanf:"fallback" yaml:"fallback"`
}

// FallbackRules tighten validation of jurisdictions accepted below the
// provider confidence floor.
type FallbackRules struct {
	MinConfidence float64 `koanf:"min_confidence" yaml:"min_confidence"`
}

// DefaultRules returns the built-in ruleset.
func DefaultRules() Rules {
	var r Rules
	if err := yamlv3.Unmarshal(defaultRulesYAML, &r); err != nil {
		panic(fmt.Sprintf("quality: embedded rules: %v", err))
	}
	return r
}

// LoadRules layers the YAML file at path over the built-in rules. Lists in
// the file replace the defaults; maps are merged key by key.
func LoadRules(path string) (Rules, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Rules{}, fmt.Errorf("load rules %s: %w", path, err)
	}
	rules := DefaultRules()
	lists := map[string]*[]string{
		"placeholder_names":         &rules.PlaceholderNames,
		"placeholder_tokens":        &rules.PlaceholderTokens,
		"placeholder_email_domains": &rules.PlaceholderEmailDomains,
		"placeholder_phones":        &rules.PlaceholderPhones,
		"generic_places":            &rules.GenericPlaces,
	}
	for key, field := range lists {
		if k.Exists(key) {
			*field = nil
		}
	}
	if err := k.UnmarshalWithConf("", &rules, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Rules{}, fmt.Errorf("decode rules %s: %w", path, err)
	}
	if _, err := rules.compile(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

type compiledRules struct {
	source        Rules
	names         []*regexp.Regexp
	tokens        []*regexp.Regexp
	emailDomains  []string
	phones        []*regexp.Regexp
	genericPlaces []*regexp.Regexp
	suffixes      map[string][]string
	staleAfter    map[domain.Level]time.Duration
}

func (r Rules) compile() (*compiledRules, error) {
	c := &compiledRules{
		source:     r,
		suffixes:   make(map[string][]string, len(r.CountySuffixes)),
		staleAfter: make(map[domain.Level]time.Duration, len(r.StaleAfter)),
	}
	var err error
	if c.names, err = compileAll("placeholder_names", r.PlaceholderNames); err != nil {
		return nil, err
	}
	if c.phones, err = compileAll("placeholder_phones", r.PlaceholderPhones); err != nil {
		return nil, err
	}
	if c.genericPlaces, err = compileAll("generic_places", r.GenericPlaces); err != nil {
		return nil, err
	}
	for _, tok := range platformstrings.DedupeAndTrimLower(r.PlaceholderTokens) {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(tok) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("placeholder_tokens %q: %w", tok, err)
		}
		c.tokens = append(c.tokens, re)
	}
	c.emailDomains = platformstrings.DedupeAndTrimLower(r.PlaceholderEmailDomains)
	for state, list := range r.CountySuffixes {
		c.suffixes[strings.ToUpper(state)] = list
	}
	if len(c.suffixes["*"]) == 0 {
		return nil, errors.New(`county_suffixes must define a "*" default`)
	}
	for name, d := range r.StaleAfter {
		level, err := domain.ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("stale_after: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("stale_after.%s must be positive", name)
		}
		c.staleAfter[level] = d
	}
	if r.MinProvenanceConfidence < 0 || r.MinProvenanceConfidence > 1 {
		return nil, fmt.Errorf("min_provenance_confidence must be within [0,1]")
	}
	if r.Fallback.MinConfidence < 0 || r.Fallback.MinConfidence > 1 {
		return nil, fmt.Errorf("fallback.min_confidence must be within [0,1]")
	}
	return c, nil
}

func compileAll(field string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("%s %q: %w", field, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (c *compiledRules) countySuffixes(state string) []string {
	if list, ok := c.suffixes[strings.ToUpper(state)]; ok {
		return list
	}
	return c.suffixes["*"]
}
