package constants

import "strings"

// ResponseExtensions holds the default file extensions accepted by batch intake.
var ResponseExtensions = map[string]struct{}{
	"txt":  {},
	"md":   {},
	"json": {},
}

// RubricExtensions holds the formats accepted for rubric and schema files.
var RubricExtensions = map[string]struct{}{
	"yaml": {},
	"yml":  {},
	"json": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ParseExtensions turns a comma separated list into an extension set.
// An empty list yields ResponseExtensions.
func ParseExtensions(list string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, e := range strings.Split(list, ",") {
		if e = NormalizeExt(strings.TrimSpace(e)); e != "" {
			out[e] = struct{}{}
		}
	}
	if len(out) == 0 {
		return ResponseExtensions
	}
	return out
}
