package recovery

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/correct"
	"github.com/GEOeduHJ/geo-assessment-refactoring/internal/schema"
)

const (
	DefaultThreshold    = 0.3
	DefaultMaxScanBytes = 256 << 10
	maxTextRunes        = 2000
)

// Options configures an Engine.
type Options struct {
	// Threshold is the minimum confidence for a recovered record to be kept.
	Threshold float64
	// MaxScanBytes bounds how much text is scanned.
	MaxScanBytes int
}

func DefaultOptions() Options {
	return Options{Threshold: DefaultThreshold, MaxScanBytes: DefaultMaxScanBytes}
}

// Result is the outcome of one recovery. Payload is never nil.
type Result struct {
	Payload    map[string]any
	Confidence float64
	// Recovered lists the paths found in the text, Defaulted the paths
	// filled from declared defaults.
	Recovered []string
	Defaulted []string
	// Accepted is false when Payload is the minimal default record.
	Accepted bool
}

// fieldPattern holds one expression per label group: the declared name
// first, then each alias in declaration order.
type fieldPattern struct {
	path  string
	field schema.Field
	res   []*regexp.Regexp
}

// Engine recovers labeled fragments from unstructured text. Patterns are
// compiled once; an Engine is safe for concurrent use.
type Engine struct {
	d        *schema.Descriptor
	opts     Options
	patterns []fieldPattern
	required []string
}

func New(d *schema.Descriptor, opts Options) *Engine {
	if opts.Threshold < 0 || opts.Threshold > 1 {
		opts.Threshold = DefaultThreshold
	}
	if opts.MaxScanBytes <= 0 {
		opts.MaxScanBytes = DefaultMaxScanBytes
	}
	e := &Engine{d: d, opts: opts, required: d.RequiredLeaves()}
	if len(e.required) == 0 {
		e.required = d.Leaves()
	}
	for _, p := range d.Leaves() {
		f, _ := d.Lookup(p)
		if res := compile(f); len(res) > 0 {
			e.patterns = append(e.patterns, fieldPattern{path: p, field: f, res: res})
		}
	}
	return e
}

const boundary = `(?:^|[^\p{L}\p{N}_])`

func compile(f schema.Field) []*regexp.Regexp {
	var value string
	switch f.Kind {
	case schema.KindInteger, schema.KindFloat:
		value = `\s*["']?\s*(?:[:=]|\bis\b)?\s*["']?\s*([-+]?\d+(?:\.\d+)?)`
	case schema.KindBoolean:
		value = `\s*["']?\s*[:=]\s*["']?\s*(true|false|yes|no)\b`
	case schema.KindString:
		// an unquoted value never opens an object or array
		value = `\s*["']?\s*[:=]\s*(?:"([^"\n]*)"|'([^'\n]*)'|([^\s{\[][^\n]*))`
	default:
		return nil
	}
	seen := map[string]bool{}
	var res []*regexp.Regexp
	for _, n := range append([]string{f.Name}, f.Aliases...) {
		alt := labelAlternation(n, seen)
		if alt == "" {
			continue
		}
		res = append(res, regexp.MustCompile(`(?im)`+boundary+`(?:`+alt+`)`+value))
	}
	return res
}

// labelAlternation lists a label and its spaced form, longest first, leaving
// out forms an earlier label group already claimed.
func labelAlternation(name string, seen map[string]bool) string {
	var labels []string
	for _, l := range []string{name, strings.ReplaceAll(name, "_", " ")} {
		l = strings.TrimSpace(l)
		if l == "" || seen[strings.ToLower(l)] {
			continue
		}
		seen[strings.ToLower(l)] = true
		labels = append(labels, l)
	}
	sort.SliceStable(labels, func(i, j int) bool {
		return utf8.RuneCountInString(labels[i]) > utf8.RuneCountInString(labels[j])
	})
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = regexp.QuoteMeta(l)
	}
	return strings.Join(quoted, "|")
}

// Default returns the deterministic minimal record.
func (e *Engine) Default() map[string]any {
	return e.d.DefaultRecord()
}

// Recover scans text for labeled fragments. Confidence is the fraction of
// required leaf fields found. Below the threshold the fragments are dropped
// and the minimal default record is returned instead.
func (e *Engine) Recover(text string) Result {
	if len(text) > e.opts.MaxScanBytes {
		cut := e.opts.MaxScanBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}

	found := map[string]any{}
	var recovered []string
	for _, p := range e.patterns {
		if v, ok := p.find(text); ok {
			setPath(found, p.path, v)
			recovered = append(recovered, p.path)
		}
	}

	hits := 0
	for _, r := range e.required {
		for _, got := range recovered {
			if got == r {
				hits++
				break
			}
		}
	}
	res := Result{Recovered: recovered}
	if len(e.required) > 0 {
		res.Confidence = float64(hits) / float64(len(e.required))
	}

	if len(recovered) == 0 || res.Confidence < e.opts.Threshold {
		res.Payload = e.Default()
		return res
	}

	fixed := correct.Apply(found, e.d.Validate(found).Errors, e.d, correct.Options{})
	for _, c := range fixed.Changes {
		res.Defaulted = append(res.Defaulted, c.Path)
	}
	res.Payload = fixed.Payload
	res.Accepted = true
	return res
}

// find returns the first convertible match, trying the declared name before
// any alias.
func (p fieldPattern) find(text string) (any, bool) {
	for _, re := range p.res {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if v, ok := convert(firstGroup(m), p.field); ok {
				return v, true
			}
		}
	}
	return nil, false
}

func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

func convert(raw string, f schema.Field) (any, bool) {
	raw = strings.TrimSpace(raw)
	switch f.Kind {
	case schema.KindInteger:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil || n != float64(int64(n)) {
			return nil, false
		}
		return int64(n), true
	case schema.KindFloat:
		n, err := strconv.ParseFloat(raw, 64)
		return n, err == nil
	case schema.KindBoolean:
		switch strings.ToLower(raw) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	case schema.KindString:
		s := strings.Trim(raw, "\"', ")
		s = strings.TrimSuffix(strings.TrimSpace(s), "}")
		s = strings.Trim(s, "\"', ")
		if s == "" {
			return nil, false
		}
		if r := []rune(s); len(r) > maxTextRunes {
			s = string(r[:maxTextRunes])
		}
		return s, true
	}
	return nil, false
}

func setPath(root map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	cur := root
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}
