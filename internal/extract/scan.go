package extract

// region is a byte range [start, end) of s.
type region struct{ start, end int }

// regions returns the top-level balanced regions of s that open with '{' or
// '['. Markers inside string literals are ignored. A mismatched closer
// discards the region being tracked. An unterminated region at the end of s
// is reported through open.
func regions(s string) (found []region, open int) {
	var stack []byte
	start := -1
	inString, escaped := false, false
	open = -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if len(stack) == 0 {
			if c == '{' || c == '[' {
				stack = append(stack, c)
				start = i
				inString, escaped = false, false
			}
			continue
		}
		if inString {
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
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			want := byte('{')
			if c == ']' {
				want = '['
			}
			if stack[len(stack)-1] != want {
				stack = stack[:0]
				start = -1
				continue
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				found = append(found, region{start, i + 1})
				start = -1
			}
		}
	}
	if len(stack) > 0 {
		open = start
	}
	return found, open
}
