package creds

import (
	"context"
	"encoding/json"
	"os/exec"
	"runtime"
	"strings"

	"github.com/unbrowse/unbrowse/internal/fault"
)

// Keychain is the OS secret store. Get returns "" with nil error when
// the item does not exist.
type Keychain interface {
	Get(ctx context.Context, service, account string) (string, error)
	Set(ctx context.Context, service, account, secret string) error
	Delete(ctx context.Context, service, account string) error
}

// KeychainProvider reads credentials from the OS keychain under the
// service namespace "unbrowse/<domain>". The secret is the credential
// encoded as JSON.
type KeychainProvider struct {
	kc Keychain
}

func (p *KeychainProvider) Lookup(ctx context.Context, domain, purpose string) (*LoginCredential, error) {
	secret, err := p.kc.Get(ctx, KeychainService(domain), purpose)
	if err != nil {
		return nil, err
	}
	if secret == "" {
		return nil, nil
	}
	var cred LoginCredential
	if err := json.Unmarshal([]byte(secret), &cred); err != nil {
		// Plain secrets predate the JSON encoding; treat as password.
		return &LoginCredential{Password: secret}, nil
	}
	return &cred, nil
}

// Store writes a credential into the keychain.
func (p *KeychainProvider) Store(ctx context.Context, domain, purpose string, cred *LoginCredential) error {
	if cred == nil {
		return fault.Input("credential required")
	}
	secret, err := json.Marshal(cred)
	if err != nil {
		return fault.Wrap(fault.CodeInternal, "encode credential", err)
	}
	return p.kc.Set(ctx, KeychainService(domain), purpose, string(secret))
}

// KeychainService is the keychain service name for a domain.
func KeychainService(domain string) string {
	return "unbrowse/" + domain
}

// osKeychain shells out to the platform secret tool: `security` on
// macOS, `secret-tool` elsewhere.
type osKeychain struct {
	goos string
}

// NewOSKeychain returns the platform keychain client.
func NewOSKeychain() Keychain {
	return &osKeychain{goos: runtime.GOOS}
}

func (k *osKeychain) Get(ctx context.Context, service, account string) (string, error) {
	var cmd *exec.Cmd
	switch k.goos {
	case "darwin":
		cmd = exec.CommandContext(ctx, "security", "find-generic-password",
			"-s", service, "-a", account, "-w")
	default:
		cmd = exec.CommandContext(ctx, "secret-tool", "lookup",
			"service", service, "account", account)
	}
	out, err := cmd.Output()
	if err != nil {
		// Both tools exit non-zero for a missing item.
		if _, ok := err.(*exec.ExitError); ok {
			return "", nil
		}
		return "", fault.Wrap(fault.CodeInternal, "keychain helper unavailable", err)
	}
	return strings.TrimRight(string(out), "\n"), nil
}

func (k *osKeychain) Set(ctx context.Context, service, account, secret string) error {
	var cmd *exec.Cmd
	switch k.goos {
	case "darwin":
		cmd = exec.CommandContext(ctx, "security", "add-generic-password",
			"-U", "-s", service, "-a", account, "-w", secret)
	default:
		cmd = exec.CommandContext(ctx, "secret-tool", "store",
			"--label", service,
			"service", service, "account", account)
		cmd.Stdin = strings.NewReader(secret)
	}
	if err := cmd.Run(); err != nil {
		return fault.Wrap(fault.CodeInternal, "keychain store failed", err)
	}
	return nil
}

func (k *osKeychain) Delete(ctx context.Context, service, account string) error {
	var cmd *exec.Cmd
	switch k.goos {
	case "darwin":
		cmd = exec.CommandContext(ctx, "security", "delete-generic-password",
			"-s", service, "-a", account)
	default:
		cmd = exec.CommandContext(ctx, "secret-tool", "clear",
			"service", service, "account", account)
	}
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return nil
		}
		return fault.Wrap(fault.CodeInternal, "keychain helper unavailable", err)
	}
	return nil
}
