// Package skillindex keeps an in-memory inverted index over saved
// skills so intent resolution against local disk is a ranked search,
// not a directory scan. Rebuilt from the store on startup, updated on
// every save and delete.
package skillindex

import (
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/unbrowse/unbrowse/pkg/types"
)

// Hit is one ranked local search result. Score is token overlap in
// [0, 1]; the resolver blends it with reliability and freshness.
type Hit struct {
	Manifest *types.SkillManifest
	Score    float64
}

// Index maintains Roaring bitmap postings over skill manifests.
type Index struct {
	mu sync.RWMutex

	idToDoc   map[string]uint32
	docs      []*types.SkillManifest
	alive     *roaring.Bitmap
	nextDocID uint32

	idxDomain map[string]*roaring.Bitmap
	idxMethod map[string]*roaring.Bitmap
	idxToken  map[string]*roaring.Bitmap
}

// New returns an empty index.
func New() *Index {
	return &Index{
		idToDoc:   make(map[string]uint32),
		alive:     roaring.New(),
		idxDomain: make(map[string]*roaring.Bitmap),
		idxMethod: make(map[string]*roaring.Bitmap),
		idxToken:  make(map[string]*roaring.Bitmap),
	}
}

// Rebuild replaces the whole index with the given manifests.
func (x *Index) Rebuild(manifests []*types.SkillManifest) {
	x.mu.Lock()
	x.idToDoc = make(map[string]uint32, len(manifests))
	x.docs = x.docs[:0]
	x.alive = roaring.New()
	x.nextDocID = 0
	x.idxDomain = make(map[string]*roaring.Bitmap)
	x.idxMethod = make(map[string]*roaring.Bitmap)
	x.idxToken = make(map[string]*roaring.Bitmap)
	x.mu.Unlock()
	for _, m := range manifests {
		x.Upsert(m)
	}
}

// Upsert indexes a manifest, replacing any previous document for the
// same skill id. Stale postings die with the old doc id; the index is
// rebuilt from disk on startup, so they never accumulate across runs.
func (x *Index) Upsert(m *types.SkillManifest) {
	if m == nil || m.SkillID == "" {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	if old, ok := x.idToDoc[m.SkillID]; ok {
		x.alive.Remove(old)
	}
	docID := x.nextDocID
	x.nextDocID++
	x.docs = append(x.docs, m)
	x.idToDoc[m.SkillID] = docID
	x.alive.Add(docID)

	if m.Domain != "" {
		addPosting(x.idxDomain, strings.ToLower(m.Domain), docID)
	}
	for _, tok := range documentTokens(m) {
		addPosting(x.idxToken, tok, docID)
	}
	for i := range m.Endpoints {
		addPosting(x.idxMethod, strings.ToUpper(m.Endpoints[i].Method), docID)
	}
}

// Delete removes a skill from the index.
func (x *Index) Delete(skillID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if docID, ok := x.idToDoc[skillID]; ok {
		x.alive.Remove(docID)
		delete(x.idToDoc, skillID)
	}
}

// Get returns the indexed manifest for a skill id, or nil.
func (x *Index) Get(skillID string) *types.SkillManifest {
	x.mu.RLock()
	defer x.mu.RUnlock()
	docID, ok := x.idToDoc[skillID]
	if !ok || !x.alive.Contains(docID) {
		return nil
	}
	return x.docs[docID]
}

// Len returns the number of live skills.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return int(x.alive.GetCardinality())
}

// Search ranks live skills by intent-token overlap. A non-empty domain
// restricts results to that domain and its subdomains. Limit <= 0
// means no limit.
func (x *Index) Search(intent, domain string, limit int) []Hit {
	tokens := Tokenize(intent)
	x.mu.RLock()
	defer x.mu.RUnlock()

	var allowed *roaring.Bitmap
	if domain != "" {
		allowed = x.domainBitmap(strings.ToLower(domain))
		if allowed == nil {
			return nil
		}
	}

	counts := make(map[uint32]int)
	if len(tokens) == 0 {
		// Domain-only query: every allowed doc matches.
		if allowed == nil {
			allowed = x.alive
		}
		it := allowed.Iterator()
		for it.HasNext() {
			counts[it.Next()] = 1
		}
	} else {
		for _, tok := range tokens {
			bm := x.idxToken[tok]
			if bm == nil {
				continue
			}
			it := bm.Iterator()
			for it.HasNext() {
				counts[it.Next()]++
			}
		}
	}

	hits := make([]Hit, 0, len(counts))
	for docID, matched := range counts {
		if !x.alive.Contains(docID) {
			continue
		}
		if allowed != nil && !allowed.Contains(docID) {
			continue
		}
		score := 1.0
		if len(tokens) > 0 {
			score = float64(matched) / float64(len(tokens))
		}
		hits = append(hits, Hit{Manifest: x.docs[docID], Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Manifest.SkillID < hits[j].Manifest.SkillID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// ByDomain returns the live skills for a domain and its subdomains.
func (x *Index) ByDomain(domain string) []*types.SkillManifest {
	x.mu.RLock()
	defer x.mu.RUnlock()
	bm := x.domainBitmap(strings.ToLower(domain))
	if bm == nil {
		return nil
	}
	var out []*types.SkillManifest
	it := bm.Iterator()
	for it.HasNext() {
		docID := it.Next()
		if x.alive.Contains(docID) {
			out = append(out, x.docs[docID])
		}
	}
	return out
}

// domainBitmap unions the postings for a domain, its subdomains, and
// its parent domains, so "example.com" finds "app.example.com" and
// "app.example.com" finds a skill stored under "example.com".
func (x *Index) domainBitmap(domain string) *roaring.Bitmap {
	result := roaring.New()
	suffix := "." + domain
	for key, bm := range x.idxDomain {
		if key == domain || strings.HasSuffix(key, suffix) || strings.HasSuffix(domain, "."+key) {
			result.Or(bm)
		}
	}
	if result.IsEmpty() {
		return nil
	}
	return result
}

func documentTokens(m *types.SkillManifest) []string {
	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteString(" ")
	b.WriteString(m.IntentSignature)
	b.WriteString(" ")
	b.WriteString(m.Description)
	b.WriteString(" ")
	b.WriteString(strings.ReplaceAll(m.Domain, ".", " "))
	for i := range m.Endpoints {
		ep := &m.Endpoints[i]
		b.WriteString(" ")
		b.WriteString(ep.Description)
		for _, seg := range strings.Split(ep.URLTemplate, "/") {
			if seg == "" || strings.Contains(seg, "{") || strings.Contains(seg, ":") {
				continue
			}
			b.WriteString(" ")
			b.WriteString(seg)
		}
	}
	return Tokenize(b.String())
}

func addPosting(index map[string]*roaring.Bitmap, key string, docID uint32) {
	bm, ok := index[key]
	if !ok {
		bm = roaring.New()
		index[key] = bm
	}
	bm.Add(docID)
}
