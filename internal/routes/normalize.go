// Package routes normalizes captured URL paths into templates and
// groups exchanges into analyzed endpoint groups.
package routes

import (
	"regexp"
	"strings"
)

// Path parameter kinds, in single-request match order.
const (
	KindUUID      = "uuid"
	KindEmail     = "email"
	KindTimestamp = "timestamp"
	KindYear      = "year"
	KindHex       = "hex"
	KindID        = "id"
)

var (
	uuidPattern      = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	emailPattern     = regexp.MustCompile(`^[^@\s/]+@[^@\s/]+\.[^@\s/]+$`)
	timestampPattern = regexp.MustCompile(`^\d{10,13}$`)
	yearPattern      = regexp.MustCompile(`^\d{4}-\d{4}$`)
	hexPattern       = regexp.MustCompile(`^[0-9a-f]{8,}$`)
	integerPattern   = regexp.MustCompile(`^\d+$`)
	letterPattern    = regexp.MustCompile(`^[A-Za-z]+$`)
	mixedPattern     = regexp.MustCompile(`^[A-Za-z0-9._~-]+$`)
)

// staticSegments are path words that are never parameterized.
var staticSegments = map[string]bool{
	"api": true, "graphql": true, "rest": true, "search": true, "me": true,
	"auth": true, "login": true, "logout": true, "signin": true, "signup": true,
	"register": true, "oauth": true, "callback": true, "token": true, "refresh": true,
	"session": true, "sessions": true, "current": true, "new": true, "edit": true,
	"settings": true, "admin": true, "public": true, "internal": true,
	"health": true, "status": true, "docs": true, "batch": true, "bulk": true,
}

var versionPattern = regexp.MustCompile(`^v\d+$`)

// preservedExtensions stay visible on parameterized segments.
var preservedExtensions = map[string]bool{
	".json": true, ".xml": true, ".csv": true, ".txt": true, ".html": true,
}

// PathParam is one extracted path parameter with its witness value.
type PathParam struct {
	Name  string
	Value string
	Kind  string
	Pos   int
}

// IsStaticSegment reports whether a segment belongs to the closed set
// of structural path words (including v1, v2, ...).
func IsStaticSegment(segment string) bool {
	lower := strings.ToLower(segment)
	return staticSegments[lower] || versionPattern.MatchString(lower)
}

// matchKind classifies a single segment, in fixed priority order.
// Returns the empty string when the segment stays literal.
func matchKind(segment string) string {
	lower := strings.ToLower(segment)
	switch {
	case uuidPattern.MatchString(lower):
		return KindUUID
	case emailPattern.MatchString(segment):
		return KindEmail
	case timestampPattern.MatchString(segment):
		return KindTimestamp
	case yearPattern.MatchString(segment):
		return KindYear
	case hexPattern.MatchString(lower):
		return KindHex
	case hasLetter(segment) && hasDigit(segment) && mixedPattern.MatchString(segment):
		return KindID
	case integerPattern.MatchString(segment):
		return KindID
	default:
		return ""
	}
}

// NormalizePath rewrites identifier-looking segments of a URL path into
// {param} templates and returns the extracted parameters in path order.
func NormalizePath(path string) (string, []PathParam) {
	segments := splitPath(path)
	params := make([]PathParam, 0, 2)

	for i, segment := range segments {
		if segment == "" || IsStaticSegment(segment) || isParamSegment(segment) {
			continue
		}

		stem, ext := splitExtension(segment)
		kind := matchKind(stem)
		if kind == "" {
			continue
		}

		name := paramName(segments, i, kind)
		segments[i] = "{" + name + "}" + ext
		params = append(params, PathParam{Name: name, Value: stem, Kind: kind, Pos: i})
	}

	return joinPath(segments, strings.HasPrefix(path, "/")), params
}

// paramName names a parameter from its context: a plural previous
// segment yields singularize(prev) + "Id", otherwise the pattern kind.
func paramName(segments []string, pos int, kind string) string {
	if pos > 0 {
		prev := segments[pos-1]
		if !isParamSegment(prev) && isPlural(prev) {
			return Singularize(prev) + "Id"
		}
	}
	return kind
}

// isPlural is a heuristic: trailing s, excluding -ss, -us, -is words
// (address, status, analysis).
func isPlural(word string) bool {
	lower := strings.ToLower(word)
	if len(lower) < 3 || !strings.HasSuffix(lower, "s") {
		return false
	}
	if !letterPattern.MatchString(lower) {
		return false
	}
	switch {
	case strings.HasSuffix(lower, "ss"), strings.HasSuffix(lower, "us"), strings.HasSuffix(lower, "is"):
		return false
	}
	return true
}

// Singularize reduces a plural English noun to its singular form, well
// enough for parameter naming.
func Singularize(word string) string {
	lower := strings.ToLower(word)
	switch {
	case strings.HasSuffix(lower, "ies") && len(lower) > 3:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(lower, "ches"), strings.HasSuffix(lower, "shes"),
		strings.HasSuffix(lower, "sses"), strings.HasSuffix(lower, "xes"),
		strings.HasSuffix(lower, "zes"):
		return word[:len(word)-2]
	case strings.HasSuffix(lower, "oes") && len(lower) > 3:
		return word[:len(word)-2]
	case strings.HasSuffix(lower, "s") && !strings.HasSuffix(lower, "ss"):
		return word[:len(word)-1]
	default:
		return word
	}
}

func isParamSegment(segment string) bool {
	return strings.HasPrefix(segment, "{")
}

func isPureLetters(segment string) bool {
	return letterPattern.MatchString(segment)
}

func splitExtension(segment string) (string, string) {
	dot := strings.LastIndex(segment, ".")
	if dot <= 0 {
		return segment, ""
	}
	ext := strings.ToLower(segment[dot:])
	if preservedExtensions[ext] {
		return segment[:dot], ext
	}
	return segment, ""
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func joinPath(segments []string, rooted bool) string {
	joined := strings.Join(segments, "/")
	if rooted || joined == "" {
		return "/" + joined
	}
	return joined
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
