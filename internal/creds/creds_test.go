package creds

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unbrowse/unbrowse/internal/fault"
)

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "APP_EXAMPLE_COM", EnvKey("app.example.com"))
	assert.Equal(t, "LOCALHOST_8443", EnvKey("localhost:8443"))
	assert.Equal(t, "MY_SITE_IO", EnvKey("my-site.io"))
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("UNBROWSE_CRED_APP_EXAMPLE_COM_USERNAME", "alice")
	t.Setenv("UNBROWSE_CRED_APP_EXAMPLE_COM_PASSWORD", "s3cret")

	cred, err := EnvProvider{}.Lookup(context.Background(), "app.example.com", "login")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "alice", cred.Username)
	assert.Equal(t, "s3cret", cred.Password)

	cred, err = EnvProvider{}.Lookup(context.Background(), "other.io", "login")
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestNoneProvider(t *testing.T) {
	p, err := NewProvider("none", t.TempDir(), "", nil)
	require.NoError(t, err)
	cred, err := p.Lookup(context.Background(), "app.example.com", "login")
	require.NoError(t, err)
	assert.Nil(t, cred)

	_, err = NewProvider("carrier-pigeon", t.TempDir(), "", nil)
	assert.Equal(t, fault.CodeInput, fault.CodeOf(err))
}

func TestVaultRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.db")
	v := NewVaultProvider(path, "hunter2-passphrase")

	// Missing vault file is simply empty.
	cred, err := v.Lookup(ctx, "app.example.com", "login")
	require.NoError(t, err)
	assert.Nil(t, cred)

	require.NoError(t, v.Put(ctx, "app.example.com", "login", &LoginCredential{
		Username: "alice", Password: "s3cret",
	}))

	cred, err = v.Lookup(ctx, "app.example.com", "login")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "alice", cred.Username)
	assert.Equal(t, "s3cret", cred.Password)

	// Unknown rows stay nil.
	cred, err = v.Lookup(ctx, "app.example.com", "mfa")
	require.NoError(t, err)
	assert.Nil(t, cred)

	// Wrong passphrase fails closed rather than returning garbage.
	wrong := NewVaultProvider(path, "not-the-passphrase")
	_, err = wrong.Lookup(ctx, "app.example.com", "login")
	require.Error(t, err)
	assert.Equal(t, fault.CodeInternal, fault.CodeOf(err))

	require.NoError(t, v.Delete(ctx, "app.example.com", "login"))
	cred, err = v.Lookup(ctx, "app.example.com", "login")
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestVaultRequiresKey(t *testing.T) {
	v := NewVaultProvider(filepath.Join(t.TempDir(), "vault.db"), "")
	err := v.Put(context.Background(), "a.example.com", "login", &LoginCredential{Username: "x"})
	assert.Equal(t, fault.CodeInput, fault.CodeOf(err))
}

// fakeKeychain is an in-memory Keychain for tests.
type fakeKeychain struct {
	items map[string]string
}

func newFakeKeychain() *fakeKeychain { return &fakeKeychain{items: map[string]string{}} }

func (f *fakeKeychain) key(service, account string) string { return service + "\x00" + account }

func (f *fakeKeychain) Get(_ context.Context, service, account string) (string, error) {
	return f.items[f.key(service, account)], nil
}

func (f *fakeKeychain) Set(_ context.Context, service, account, secret string) error {
	f.items[f.key(service, account)] = secret
	return nil
}

func (f *fakeKeychain) Delete(_ context.Context, service, account string) error {
	delete(f.items, f.key(service, account))
	return nil
}

func TestKeychainProvider(t *testing.T) {
	ctx := context.Background()
	kc := newFakeKeychain()
	p := &KeychainProvider{kc: kc}

	cred, err := p.Lookup(ctx, "app.example.com", "login")
	require.NoError(t, err)
	assert.Nil(t, cred)

	require.NoError(t, p.Store(ctx, "app.example.com", "login", &LoginCredential{
		Username: "alice", Password: "s3cret",
	}))
	assert.Contains(t, kc.items, "unbrowse/app.example.com\x00login")

	cred, err = p.Lookup(ctx, "app.example.com", "login")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "alice", cred.Username)

	// Pre-JSON secrets come back as a bare password.
	require.NoError(t, kc.Set(ctx, "unbrowse/legacy.io", "login", "old-plain-secret"))
	cred, err = p.Lookup(ctx, "legacy.io", "login")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "old-plain-secret", cred.Password)
	assert.Empty(t, cred.Username)
}

func TestLoadWalletMigratesLegacyKey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"creatorWallet":"0xabc","privateKey":"legacy-key"}`), 0o600))

	kc := newFakeKeychain()
	w, err := LoadWallet(ctx, dir, "", kc)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", w.Address)

	// Key moved to the keychain and stripped from the file.
	key, err := w.PrivateKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "legacy-key", key)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "0xabc", doc["creatorWallet"])
	assert.NotContains(t, doc, "privateKey")
}

func TestLoadWalletOverrideAndMissingFile(t *testing.T) {
	ctx := context.Background()
	w, err := LoadWallet(ctx, t.TempDir(), "0xoverride", newFakeKeychain())
	require.NoError(t, err)
	assert.Equal(t, "0xoverride", w.Address)

	key, err := w.PrivateKey(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestSaveWallet(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SaveWallet(dir, "0xdef"))
	w, err := LoadWallet(context.Background(), dir, "", newFakeKeychain())
	require.NoError(t, err)
	assert.Equal(t, "0xdef", w.Address)

	assert.Equal(t, fault.CodeInput, fault.CodeOf(SaveWallet(dir, "")))
}
