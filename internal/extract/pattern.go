package extract

import (
	"regexp"
	"slices"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/normalize"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/schema"
)

// reLoose is the permissive boundary: first '{' through the last '}'.
var reLoose = regexp.MustCompile(`(?s)\{.*\}`)

var smartQuotes = strings.NewReplacer(
	"\u201c", `"`, "\u201d", `"`, "\u201e", `"`, "\u201f", `"`,
	"\u2018", "'", "\u2019", "'",
)

// PatternScan looks for record-like regions in the payload view, where
// dangling separators are already gone, and decodes them after light
// repair. Among decodable candidates the first one holding an expected key
// wins, otherwise the first decodable one.
type PatternScan struct {
	expected []string
}

func NewPatternScan(expectedKeys []string) *PatternScan {
	return &PatternScan{expected: slices.Clone(expectedKeys)}
}

func (*PatternScan) ID() ID { return IDPattern }

func (p *PatternScan) Attempt(text normalize.Text) (map[string]any, error) {
	s := text.Payload
	if len(s) > maxScan {
		return nil, ErrTooLarge
	}
	cands := candidates(s)
	if len(cands) == 0 {
		return nil, ErrNoCandidate
	}

	var first map[string]any
	var lastErr error
	for _, c := range cands {
		m, err := repairDecode(c)
		if err != nil {
			lastErr = &DecodeError{Strategy: IDPattern, Region: c, Err: err}
			continue
		}
		if p.matches(m) {
			return m, nil
		}
		if first == nil {
			first = m
		}
	}
	if first != nil {
		return first, nil
	}
	return nil, lastErr
}

func (p *PatternScan) matches(m map[string]any) bool {
	if len(p.expected) == 0 {
		return true
	}
	for _, k := range p.expected {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// candidates lists balanced object regions, then the loose regex match,
// then an unterminated trailing region, without duplicates.
func candidates(s string) []string {
	var out []string
	add := func(c string) {
		c = strings.TrimSpace(c)
		if len(c) < 2 || slices.Contains(out, c) {
			return
		}
		out = append(out, c)
	}
	found, open := regions(s)
	for _, r := range found {
		if s[r.start] == '{' {
			add(s[r.start:r.end])
		}
	}
	if m := reLoose.FindString(s); m != "" {
		add(m)
	}
	if open >= 0 && s[open] == '{' {
		add(s[open:])
	}
	return out
}

// repairDecode tries the candidate as-is, then with typographic quotes
// replaced, then through a full JSON repair.
func repairDecode(c string) (map[string]any, error) {
	m, err := schema.DecodeObject(c)
	if err == nil {
		return m, nil
	}
	if q := smartQuotes.Replace(c); q != c {
		if m, qerr := schema.DecodeObject(q); qerr == nil {
			return m, nil
		}
	}
	fixed, rerr := jsonrepair.JSONRepair(c)
	if rerr != nil {
		return nil, err
	}
	return schema.DecodeObject(fixed)
}
