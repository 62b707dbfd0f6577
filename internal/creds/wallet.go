package creds

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/unbrowse/unbrowse/internal/fault"
)

const (
	walletFile    = "wallet.json"
	walletService = "unbrowse/wallet"
	walletAccount = "private-key"
)

// walletDoc is the on-disk shape. PrivateKey appears only in legacy
// files and is migrated into the keychain on load.
type walletDoc struct {
	CreatorWallet string `json:"creatorWallet"`
	PrivateKey    string `json:"privateKey,omitempty"`
}

// Wallet is the creator identity: a public address on disk, the
// private key in the OS keychain. Read-only after startup migration.
type Wallet struct {
	Address string
	kc      Keychain
}

// LoadWallet reads wallet.json under baseDir. A legacy on-disk private
// key is moved into the keychain and stripped from the file; the file
// copy is only removed once the keychain write succeeded. A non-empty
// override (UNBROWSE_CREATOR_WALLET) wins over the stored address.
func LoadWallet(ctx context.Context, baseDir, override string, kc Keychain) (*Wallet, error) {
	w := &Wallet{kc: kc}
	path := filepath.Join(baseDir, walletFile)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// No wallet yet; the override may still name an address.
	case err != nil:
		return nil, err
	default:
		var doc walletDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fault.Wrap(fault.CodeInternal, "corrupt wallet file", err)
		}
		w.Address = doc.CreatorWallet
		if doc.PrivateKey != "" {
			if err := migrateWalletKey(ctx, path, &doc, kc); err != nil {
				slog.Warn("wallet key migration failed, keeping file copy", "error", err)
			}
		}
	}
	if override != "" {
		w.Address = override
	}
	return w, nil
}

func migrateWalletKey(ctx context.Context, path string, doc *walletDoc, kc Keychain) error {
	if kc == nil {
		return fault.New(fault.CodeInternal, "no keychain available")
	}
	if err := kc.Set(ctx, walletService, walletAccount, doc.PrivateKey); err != nil {
		return err
	}
	doc.PrivateKey = ""
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fault.Wrap(fault.CodeInternal, "encode wallet file", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	slog.Info("migrated wallet private key into keychain")
	return nil
}

// PrivateKey fetches the signing key from the keychain, "" when absent.
func (w *Wallet) PrivateKey(ctx context.Context) (string, error) {
	if w.kc == nil {
		return "", nil
	}
	return w.kc.Get(ctx, walletService, walletAccount)
}

// SaveWallet writes the public address, used by the CLI on first setup.
func SaveWallet(baseDir, address string) error {
	if address == "" {
		return fault.Input("wallet address required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(&walletDoc{CreatorWallet: address}, "", "  ")
	if err != nil {
		return fault.Wrap(fault.CodeInternal, "encode wallet file", err)
	}
	path := filepath.Join(baseDir, walletFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
