package headerprof

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/unbrowse/unbrowse/internal/fault"
	"github.com/unbrowse/unbrowse/pkg/types"
)

// Store persists one profile file per domain under a base directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes a profile atomically to <dir>/<domain>.json.
func (s *Store) Save(profile *types.HeaderProfile) error {
	if profile == nil || profile.Domain == "" {
		return fault.Input("header profile has no domain")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return err
	}
	path := s.path(profile.Domain)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// SaveAll persists every profile in the file, attempting all domains
// before reporting the first failure.
func (s *Store) SaveAll(file *types.HeaderProfileFile) error {
	if file == nil {
		return nil
	}
	var firstErr error
	for _, profile := range file.Profiles {
		if err := s.Save(profile); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) Load(domain string) (*types.HeaderProfile, error) {
	data, err := os.ReadFile(s.path(domain))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fault.NotFound("header profile", domain)
	}
	if err != nil {
		return nil, err
	}
	var profile types.HeaderProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "corrupt header profile "+domain, err)
	}
	return &profile, nil
}

// List returns the domains with a stored profile.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var domains []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		domains = append(domains, strings.TrimSuffix(name, ".json"))
	}
	return domains, nil
}

func (s *Store) path(domain string) string {
	return filepath.Join(s.dir, domainSlug(domain)+".json")
}

// domainSlug keeps hostnames filesystem-safe.
func domainSlug(domain string) string {
	lower := strings.ToLower(domain)
	var b strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), ".")
}
