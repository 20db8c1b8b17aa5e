package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	reCRLF      = regexp.MustCompile(`\r\n?`)
	reFenceLine = regexp.MustCompile("(?m)^[ \t]*(?:```|~~~)[\\w+.-]*[ \t]*$\n?")
)

// invisible runes that generators leave around payloads
var invisible = strings.NewReplacer(
	"\ufeff", "",
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\u2060", "",
)

// Text is the normalized form of one raw response.
//
// Canonical keeps the layout of the response (fences, prose, line breaks) and
// only canonicalizes encoding and line endings. Payload is the structural
// region alone: prose outside the outermost markers, fence delimiters and
// dangling separators removed, whitespace outside string literals collapsed.
type Text struct {
	Canonical string
	Payload   string
}

// Normalize never fails and never rewrites characters inside string literals.
// Applying it to either view of its own output returns that view unchanged.
func Normalize(raw string) Text {
	c := Canonicalize(raw)
	return Text{Canonical: c, Payload: structural(c)}
}

// Canonicalize converts to NFC, drops invisible runes and unifies line
// endings. Outside string literals it also trims line ends and collapses runs
// of blank lines.
func Canonicalize(s string) string {
	if s == "" {
		return s
	}
	s = norm.NFC.String(s)
	s = invisible.Replace(s)
	s = reCRLF.ReplaceAllString(s, "\n")
	return strings.TrimSpace(trimLines(s))
}

// trimLines leaves lines that open or close inside a string literal as they
// are. Quotes only start literals after the first opening marker, so an
// apostrophe or stray quote in leading prose cannot swallow the payload.
func trimLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	structured, inString, escaped := false, false, false
	blanks := 0
	for _, line := range lines {
		startIn := inString
		for i := 0; i < len(line); i++ {
			c := line[i]
			switch {
			case escaped:
				escaped = false
			case inString && c == '\\':
				escaped = true
			case inString && c == '"':
				inString = false
			case !inString && (c == '{' || c == '['):
				structured = true
			case !inString && structured && c == '"':
				inString = true
			}
		}
		if !inString {
			line = strings.TrimRight(line, " \t")
		}
		if line == "" && !startIn && !inString {
			if blanks++; blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func structural(s string) string {
	s = reFenceLine.ReplaceAllString(s, "")
	s = stripProse(s)
	return strings.TrimSpace(tidy(s))
}

// stripProse cuts everything before the first opening marker and after the
// last closing marker. Text without a marker pair is returned as is.
func stripProse(s string) string {
	start := strings.IndexAny(s, "{[")
	end := strings.LastIndexAny(s, "}]")
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// tidy walks the text once, tracking string literals. Outside strings it
// collapses whitespace runs to one space and drops separators left dangling
// before a closing marker.
func tidy(s string) string {
	out := make([]byte, 0, len(s))
	inString, escaped, pendingSpace := false, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case ' ', '\n', '\r', '\t':
			pendingSpace = true
			continue
		case '}', ']':
			for len(out) > 0 && (out[len(out)-1] == ' ' || out[len(out)-1] == ',') {
				out = out[:len(out)-1]
			}
			pendingSpace = false
			out = append(out, c)
			continue
		}
		if pendingSpace && len(out) > 0 {
			out = append(out, ' ')
		}
		pendingSpace = false
		if c == '"' {
			inString = true
		}
		out = append(out, c)
	}
	return string(out)
}
