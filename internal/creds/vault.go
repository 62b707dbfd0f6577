package creds

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/hkdf"
	_ "modernc.org/sqlite"

	"github.com/unbrowse/unbrowse/internal/fault"
)

// vaultSalt binds derived keys to this store format.
const vaultSalt = "unbrowse-vault-v1"

const vaultSchema = `
CREATE TABLE IF NOT EXISTS credentials (
	domain     TEXT NOT NULL,
	purpose    TEXT NOT NULL,
	nonce      BLOB NOT NULL,
	ciphertext BLOB NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (domain, purpose)
);`

// VaultProvider stores AES-256-GCM encrypted credentials in a SQLite
// file. Lookups open the database read-only and close it again; only
// Put opens it writable.
type VaultProvider struct {
	path       string
	passphrase string
}

// NewVaultProvider returns a vault over the given file. The passphrase
// usually comes from UNBROWSE_VAULT_KEY.
func NewVaultProvider(path, passphrase string) *VaultProvider {
	return &VaultProvider{path: path, passphrase: passphrase}
}

// Lookup decrypts the credential for (domain, purpose), nil when the
// vault or the row does not exist.
func (v *VaultProvider) Lookup(ctx context.Context, domain, purpose string) (*LoginCredential, error) {
	if _, err := os.Stat(v.path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	db, err := sql.Open("sqlite", "file:"+v.path+"?mode=ro")
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "open vault", err)
	}
	defer db.Close()

	var nonce, ciphertext []byte
	row := db.QueryRowContext(ctx,
		"SELECT nonce, ciphertext FROM credentials WHERE domain = ? AND purpose = ?",
		domain, purpose)
	if err := row.Scan(&nonce, &ciphertext); errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "read vault", err)
	}

	aead, err := v.aead()
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, vaultAAD(domain, purpose))
	if err != nil {
		return nil, fault.New(fault.CodeInternal, "vault decrypt failed; check vault key")
	}
	var cred LoginCredential
	if err := json.Unmarshal(plaintext, &cred); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "corrupt vault entry", err)
	}
	return &cred, nil
}

// Put encrypts and upserts a credential. Used by the CLI, never by the
// resolver path.
func (v *VaultProvider) Put(ctx context.Context, domain, purpose string, cred *LoginCredential) error {
	if cred == nil {
		return fault.Input("credential required")
	}
	aead, err := v.aead()
	if err != nil {
		return err
	}
	plaintext, err := json.Marshal(cred)
	if err != nil {
		return fault.Wrap(fault.CodeInternal, "encode credential", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fault.Wrap(fault.CodeInternal, "generate nonce", err)
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, vaultAAD(domain, purpose))

	db, err := sql.Open("sqlite", "file:"+v.path)
	if err != nil {
		return fault.Wrap(fault.CodeInternal, "open vault", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, vaultSchema); err != nil {
		return fault.Wrap(fault.CodeInternal, "init vault", err)
	}
	_, err = db.ExecContext(ctx,
		"INSERT OR REPLACE INTO credentials (domain, purpose, nonce, ciphertext, updated_at) VALUES (?, ?, ?, ?, ?)",
		domain, purpose, nonce, ciphertext, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fault.Wrap(fault.CodeInternal, "write vault", err)
	}
	return nil
}

// Delete removes a credential row.
func (v *VaultProvider) Delete(ctx context.Context, domain, purpose string) error {
	if _, err := os.Stat(v.path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	db, err := sql.Open("sqlite", "file:"+v.path)
	if err != nil {
		return fault.Wrap(fault.CodeInternal, "open vault", err)
	}
	defer db.Close()
	_, err = db.ExecContext(ctx, "DELETE FROM credentials WHERE domain = ? AND purpose = ?", domain, purpose)
	if err != nil {
		return fault.Wrap(fault.CodeInternal, "write vault", err)
	}
	return nil
}

// aead derives the AES-256 key from the passphrase via HKDF-SHA256.
func (v *VaultProvider) aead() (cipher.AEAD, error) {
	if v.passphrase == "" {
		return nil, fault.New(fault.CodeInput, "vault key not configured")
	}
	kdf := hkdf.New(sha256.New, []byte(v.passphrase), []byte(vaultSalt), []byte("credentials"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "derive vault key", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fault.Wrap(fault.CodeInternal, "init vault cipher", err)
	}
	return cipher.NewGCM(block)
}

// vaultAAD binds ciphertexts to their row so entries cannot be swapped
// between domains.
func vaultAAD(domain, purpose string) []byte {
	return []byte(domain + "\x00" + purpose)
}
