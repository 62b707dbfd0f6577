package routes

import (
	"fmt"
	"strings"
)

// KindSlug marks parameters created by cross-request generalization of
// pure-letter segments.
const KindSlug = "slug"

// generalizeAcross rewrites still-literal pure-letter segments that
// take two or more distinct values at the same position across requests
// of the same method and shape. A single witness never generalizes.
func generalizeAcross(obs []*observation) {
	groups := make(map[string][]*observation)
	for _, o := range obs {
		key := fmt.Sprintf("%s %d", o.method, len(o.segments))
		groups[key] = append(groups[key], o)
	}

	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		segCount := len(group[0].segments)
		for i := 0; i < segCount; i++ {
			// Candidates must agree everywhere except the candidate
			// position; bucket by that remainder signature.
			buckets := make(map[string][]*observation)
			for _, o := range group {
				seg := o.segments[i]
				if !isPureLetters(seg) || IsStaticSegment(seg) || isParamSegment(seg) {
					continue
				}
				sig := signatureExcept(o.segments, i)
				buckets[sig] = append(buckets[sig], o)
			}

			for _, bucket := range buckets {
				distinct := make(map[string]bool)
				for _, o := range bucket {
					distinct[o.segments[i]] = true
				}
				if len(distinct) < 2 {
					continue
				}
				name := crossParamName(bucket[0].segments, i)
				for _, o := range bucket {
					witness := o.segments[i]
					o.segments[i] = "{" + name + "}"
					o.insertParam(PathParam{Name: name, Value: witness, Kind: KindSlug, Pos: i})
				}
			}
		}
	}
}

func signatureExcept(segments []string, skip int) string {
	parts := make([]string, len(segments))
	for j, s := range segments {
		if j == skip {
			parts[j] = "*"
		} else {
			parts[j] = s
		}
	}
	return strings.Join(parts, "/")
}

// crossParamName prefers the singularized previous segment, falling
// back to a positional name, and never reuses a name already present in
// the path.
func crossParamName(segments []string, pos int) string {
	if pos > 0 {
		prev := segments[pos-1]
		if !isParamSegment(prev) && isPureLetters(prev) {
			name := Singularize(prev)
			if !containsParam(segments, name) {
				return name
			}
		}
	}
	return fmt.Sprintf("p%d", pos+1)
}

func containsParam(segments []string, name string) bool {
	needle := "{" + name + "}"
	for _, s := range segments {
		if s == needle || strings.HasPrefix(s, needle+".") {
			return true
		}
	}
	return false
}
