package skillindex

import "strings"

// stopwords are dropped from intent and document tokens alike.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "api": true, "for": true,
	"from": true, "in": true, "is": true, "my": true, "of": true,
	"on": true, "or": true, "the": true, "to": true, "use": true,
	"with": true,
}

// Tokenize lowercases, splits on non-alphanumerics, folds trailing
// plurals, and drops stopwords and single characters. Both documents
// and queries go through it so they meet in the same token space.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	seen := make(map[string]bool, len(fields))
	var tokens []string
	for _, f := range fields {
		tok := fold(f)
		if len(tok) < 2 || stopwords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}
	return tokens
}

// fold strips a trailing plural "s" so "orders" and "order" collide.
func fold(tok string) string {
	if len(tok) > 3 && strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") {
		return tok[:len(tok)-1]
	}
	return tok
}
