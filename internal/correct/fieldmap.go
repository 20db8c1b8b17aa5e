package correct

import (
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// Candidate is a declared field a stray key may be mapped onto.
type Candidate struct {
	Name    string
	Aliases []string
}

// MatchField maps key onto one candidate name. Exact matches after folding
// case and separators win, then alias matches, then the unique candidate
// within a bounded edit distance. The bound shrinks for short names and
// fuzzy matching is off below four characters. Ties never match.
func MatchField(key string, cands []Candidate, maxDist int) (string, bool) {
	k := fold(key)
	if k == "" {
		return "", false
	}

	var exact []string
	for _, c := range cands {
		if fold(c.Name) == k {
			exact = append(exact, c.Name)
			continue
		}
		for _, a := range c.Aliases {
			if fold(a) == k {
				exact = append(exact, c.Name)
				break
			}
		}
	}
	if len(exact) == 1 {
		return exact[0], true
	}
	if len(exact) > 1 || maxDist <= 0 {
		return "", false
	}

	best, bestDist, tie := "", maxDist+1, false
	for _, c := range cands {
		for _, target := range append([]string{c.Name}, c.Aliases...) {
			t := fold(target)
			n := utf8.RuneCountInString(t)
			if n < 4 {
				continue
			}
			bound := min(maxDist, n/3)
			d := levenshtein.Distance(k, t, nil)
			if d > bound {
				continue
			}
			switch {
			case d < bestDist:
				best, bestDist, tie = c.Name, d, false
			case d == bestDist && best != c.Name:
				tie = true
			}
		}
	}
	if best == "" || tie {
		return "", false
	}
	return best, true
}

func fold(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ', '.':
			return -1
		}
		return r
	}, s)
}
