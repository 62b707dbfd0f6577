// Package skillstore persists skill directories: SKILL.md with YAML
// frontmatter, auth.json, reference artifacts, the generated client
// script, and marketplace metadata.
package skillstore

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/pkg/types"
)

const (
	skillFile       = "SKILL.md"
	authFile        = "auth.json"
	marketplaceFile = ".marketplace.json"
	recipesFile     = "recipes.json"
	referenceDir    = "references"
	referenceFile   = "REFERENCE.md"
	dagFile         = "DAG.json"
	scriptsDir      = "scripts"
	scriptFile      = "api.go"
)

// MarketplaceMeta records where a skill was published.
type MarketplaceMeta struct {
	SkillID  string `json:"skillId"`
	IndexURL string `json:"indexUrl"`
	Name     string `json:"name"`
}

// Bundle is everything a saved skill carries besides its header profile.
type Bundle struct {
	Manifest *types.SkillManifest
	Auth     *types.AuthState
	Graph    *types.CorrelationGraphV1
}

// Store reads and writes skill directories under <root>/skills.
type Store struct {
	root      string
	skillsDir string
	mu        sync.Mutex
}

// Option adjusts store construction.
type Option func(*Store)

// WithSkillsDir places skill directories somewhere other than the
// default <root>/skills.
func WithSkillsDir(dir string) Option {
	return func(s *Store) {
		if dir != "" {
			s.skillsDir = dir
		}
	}
}

// New returns a store rooted at the given base directory (usually
// ~/.unbrowse).
func New(root string, opts ...Option) *Store {
	s := &Store{root: root, skillsDir: filepath.Join(root, "skills")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the base directory.
func (s *Store) Root() string { return s.root }

// SkillsDir returns the directory that holds one subdirectory per skill.
func (s *Store) SkillsDir() string { return s.skillsDir }

// Dir returns the directory for one skill id.
func (s *Store) Dir(skillID string) string {
	return filepath.Join(s.SkillsDir(), skillID)
}

// Save writes the full skill directory: SKILL.md, auth.json, the
// reference artifacts, and the generated client script.
func (s *Store) Save(b *Bundle) error {
	if b == nil || b.Manifest == nil || b.Manifest.SkillID == "" {
		return fault.Input("skill bundle has no manifest")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.Dir(b.Manifest.SkillID)
	doc, err := RenderSkillMD(b.Manifest)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(dir, skillFile), doc, 0o644); err != nil {
		return err
	}
	if b.Auth != nil {
		if err := s.writeAuth(dir, b.Auth); err != nil {
			return err
		}
	}
	if err := writeFileAtomic(filepath.Join(dir, referenceDir, referenceFile), RenderReference(b.Manifest, b.Graph), 0o644); err != nil {
		return err
	}
	graph := b.Graph
	if graph == nil {
		graph = &types.CorrelationGraphV1{Version: 1}
	}
	dag, err := json.MarshalIndent(graph, "", "  ")
	if err != nil {
		return fault.Wrap(fault.CodeInternal, "encode correlation graph", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, referenceDir, dagFile), dag, 0o644); err != nil {
		return err
	}
	script, err := RenderClientScript(b.Manifest)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, scriptsDir, scriptFile), script, 0o644)
}

// SaveManifest rewrites SKILL.md only, for verification and merge
// updates that do not touch auth state.
func (s *Store) SaveManifest(m *types.SkillManifest) error {
	if m == nil || m.SkillID == "" {
		return fault.Input("manifest has no skill id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := RenderSkillMD(m)
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.Dir(m.SkillID), skillFile), doc, 0o644)
}

// SaveAuth rewrites auth.json, used by the refresh scheduler after a
// token rotation.
func (s *Store) SaveAuth(skillID string, a *types.AuthState) error {
	if skillID == "" || a == nil {
		return fault.Input("auth state requires a skill id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAuth(s.Dir(skillID), a)
}

func (s *Store) writeAuth(dir string, a *types.AuthState) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fault.Wrap(fault.CodeInternal, "encode auth state", err)
	}
	// Auth material is secret, owner-only.
	return writeFileAtomic(filepath.Join(dir, authFile), data, 0o600)
}

// Manifest loads and parses SKILL.md for one skill.
func (s *Store) Manifest(skillID string) (*types.SkillManifest, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(skillID), skillFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fault.NotFound("skill", skillID)
	}
	if err != nil {
		return nil, err
	}
	return ParseSkillMD(data)
}

// Auth loads auth.json for one skill. A missing file is not an error:
// skills imported from the marketplace start without local auth.
func (s *Store) Auth(skillID string) (*types.AuthState, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(skillID), authFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var a types.AuthState
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "corrupt auth state for "+skillID, err)
	}
	return &a, nil
}

// Graph loads references/DAG.json for one skill, nil when absent.
func (s *Store) Graph(skillID string) (*types.CorrelationGraphV1, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(skillID), referenceDir, dagFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var g types.CorrelationGraphV1
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "corrupt correlation graph for "+skillID, err)
	}
	return &g, nil
}

// Load assembles the full bundle for one skill.
func (s *Store) Load(skillID string) (*Bundle, error) {
	m, err := s.Manifest(skillID)
	if err != nil {
		return nil, err
	}
	a, err := s.Auth(skillID)
	if err != nil {
		return nil, err
	}
	g, err := s.Graph(skillID)
	if err != nil {
		return nil, err
	}
	return &Bundle{Manifest: m, Auth: a, Graph: g}, nil
}

// List loads every skill manifest on disk, sorted by skill id.
// Unparseable directories are skipped with a warning.
func (s *Store) List() ([]*types.SkillManifest, error) {
	entries, err := os.ReadDir(s.SkillsDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var manifests []*types.SkillManifest
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m, err := s.Manifest(entry.Name())
		if err != nil {
			slog.Warn("skipping unreadable skill", "skill_id", entry.Name(), "error", err)
			continue
		}
		manifests = append(manifests, m)
	}
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].SkillID < manifests[j].SkillID })
	return manifests, nil
}

// Delete removes a skill directory.
func (s *Store) Delete(skillID string) error {
	if skillID == "" {
		return fault.Input("skill id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.Dir(skillID)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return fault.NotFound("skill", skillID)
	}
	return os.RemoveAll(dir)
}

// SaveRecipe stores the extraction recipe for one endpoint of a skill.
func (s *Store) SaveRecipe(skillID, endpointID string, r *types.Recipe) error {
	if skillID == "" || endpointID == "" {
		return fault.Input("recipe requires a skill id and endpoint id")
	}
	if r.Empty() {
		return fault.Input("recipe has no transforms")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := s.Dir(skillID)
	if _, err := os.Stat(filepath.Join(dir, skillFile)); errors.Is(err, os.ErrNotExist) {
		return fault.NotFound("skill", skillID)
	}
	recipes, err := s.loadRecipes(dir)
	if err != nil {
		return err
	}
	if recipes == nil {
		recipes = make(map[string]*types.Recipe, 1)
	}
	recipes[endpointID] = r
	data, err := json.MarshalIndent(recipes, "", "  ")
	if err != nil {
		return fault.Wrap(fault.CodeInternal, "encode recipes", err)
	}
	return writeFileAtomic(filepath.Join(dir, recipesFile), data, 0o644)
}

// Recipe loads the stored recipe for one endpoint, nil when none is
// stored.
func (s *Store) Recipe(skillID, endpointID string) (*types.Recipe, error) {
	recipes, err := s.loadRecipes(s.Dir(skillID))
	if err != nil {
		return nil, err
	}
	return recipes[endpointID], nil
}

func (s *Store) loadRecipes(dir string) (map[string]*types.Recipe, error) {
	data, err := os.ReadFile(filepath.Join(dir, recipesFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	recipes := make(map[string]*types.Recipe)
	if err := json.Unmarshal(data, &recipes); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "corrupt recipes for "+filepath.Base(dir), err)
	}
	return recipes, nil
}

// SaveMarketplaceMeta records where this skill was published.
func (s *Store) SaveMarketplaceMeta(skillID string, meta *MarketplaceMeta) error {
	if meta == nil {
		return fault.Input("marketplace meta required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fault.Wrap(fault.CodeInternal, "encode marketplace meta", err)
	}
	return writeFileAtomic(filepath.Join(s.Dir(skillID), marketplaceFile), data, 0o644)
}

// MarketplaceMeta loads the publish record, nil when never published.
func (s *Store) MarketplaceMeta(skillID string) (*MarketplaceMeta, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(skillID), marketplaceFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta MarketplaceMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "corrupt marketplace meta for "+skillID, err)
	}
	return &meta, nil
}

// writeFileAtomic writes via a temp file and rename so readers never
// observe a partial artifact.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
