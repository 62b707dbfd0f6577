package types

// Location is where a correlated value lives within an exchange.
type Location string

const (
	LocHeader Location = "header"
	LocBody   Location = "body"
	LocCookie Location = "cookie"
	LocURL    Location = "url"
	LocQuery  Location = "query"
)

// CorrelationLinkV1 records "a value produced at source was reused at
// target". valueHash is the SHA-256 hex of the exact source value as
// captured, which doubles as the substring key for URL-path replacement.
type CorrelationLinkV1 struct {
	SourceRequestIndex int      `json:"sourceRequestIndex"`
	SourceLocation     Location `json:"sourceLocation"`
	SourcePath         string   `json:"sourcePath"`
	TargetRequestIndex int      `json:"targetRequestIndex"`
	TargetLocation     Location `json:"targetLocation"`
	TargetPath         string   `json:"targetPath"`
	ValueHash          string   `json:"valueHash"`
}

// CorrelationGraphV1 is a DAG over exchange indices: every link points
// strictly forward, so ascending index order is a valid topological sort.
type CorrelationGraphV1 struct {
	Version int                 `json:"version"`
	Links   []CorrelationLinkV1 `json:"links"`
}

// IncomingLinks returns the links targeting step index, in stored order.
func (g *CorrelationGraphV1) IncomingLinks(index int) []CorrelationLinkV1 {
	var out []CorrelationLinkV1
	for _, l := range g.Links {
		if l.TargetRequestIndex == index {
			out = append(out, l)
		}
	}
	return out
}

// TransitiveSources returns every exchange index the target depends on,
// directly or through intermediate links.
func (g *CorrelationGraphV1) TransitiveSources(target int) map[int]bool {
	needed := make(map[int]bool)
	var visit func(int)
	visit = func(idx int) {
		for _, l := range g.Links {
			if l.TargetRequestIndex != idx {
				continue
			}
			if !needed[l.SourceRequestIndex] {
				needed[l.SourceRequestIndex] = true
				visit(l.SourceRequestIndex)
			}
		}
	}
	visit(target)
	return needed
}
