// Package creds looks up login credentials from user-configured
// sources: environment variables, an encrypted on-disk vault, or the
// OS keychain. Absence is never an error; only broken machinery is.
package creds

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/unbrowse/unbrowse/internal/fault"
)

// LoginCredential is one username/password pair for a domain.
type LoginCredential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Provider resolves credentials for a domain and purpose ("login" for
// interactive auth). A nil credential with nil error means not found.
type Provider interface {
	Lookup(ctx context.Context, domain, purpose string) (*LoginCredential, error)
}

// Source names accepted by UNBROWSE_CREDENTIAL_SOURCE.
const (
	SourceNone     = "none"
	SourceEnv      = "env"
	SourceVault    = "vault"
	SourceKeychain = "keychain"
)

// NewProvider builds the provider for a configured source. baseDir is
// the unbrowse home (vault.db lives there); vaultKey is the vault
// passphrase; kc may be nil unless source is keychain.
func NewProvider(source, baseDir, vaultKey string, kc Keychain) (Provider, error) {
	switch source {
	case "", SourceNone:
		return noneProvider{}, nil
	case SourceEnv:
		return EnvProvider{}, nil
	case SourceVault:
		return NewVaultProvider(filepath.Join(baseDir, "vault.db"), vaultKey), nil
	case SourceKeychain:
		if kc == nil {
			kc = NewOSKeychain()
		}
		return &KeychainProvider{kc: kc}, nil
	default:
		return nil, fault.Newf(fault.CodeInput, "unknown credential source %q", source)
	}
}

type noneProvider struct{}

func (noneProvider) Lookup(context.Context, string, string) (*LoginCredential, error) {
	return nil, nil
}

// EnvProvider reads UNBROWSE_CRED_<DOMAIN>_USERNAME / _PASSWORD, with
// the domain uppercased and punctuation folded to underscores.
type EnvProvider struct{}

func (EnvProvider) Lookup(_ context.Context, domain, _ string) (*LoginCredential, error) {
	prefix := "UNBROWSE_CRED_" + EnvKey(domain) + "_"
	username := os.Getenv(prefix + "USERNAME")
	password := os.Getenv(prefix + "PASSWORD")
	if username == "" && password == "" {
		return nil, nil
	}
	return &LoginCredential{Username: username, Password: password}, nil
}

// EnvKey renders a domain as an environment variable fragment:
// "app.example.com" becomes "APP_EXAMPLE_COM".
func EnvKey(domain string) string {
	upper := strings.ToUpper(domain)
	var b strings.Builder
	for _, r := range upper {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
