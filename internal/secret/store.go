package secret

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"

	errs "github.com/curlew-mail/curlew/internal/errors"
)

const (
	// KeyFileName is the symmetric key file stored next to the config file.
	KeyFileName = ".curlew.key"

	keySize   = 32
	nonceSize = 24
)

// Store encrypts and decrypts the account password at rest. The key is
// generated on first use and kept in an owner-only file; ciphertext is
// base64(nonce || sealed) so it can live inside the JSON config record.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) KeyPath() string {
	return filepath.Join(s.dir, KeyFileName)
}

// EnsureKey loads the key file, generating a fresh random key on first use.
// Owner-only permissions are re-applied on every call, not only at creation.
func (s *Store) EnsureKey() (*[keySize]byte, error) {
	path := s.KeyPath()
	raw, err := os.ReadFile(path)
	if err == nil {
		decoded, decErr := base64.StdEncoding.DecodeString(string(raw))
		if decErr != nil || len(decoded) != keySize {
			return nil, errors.Wrapf(errs.ErrCrypto, "key file %s is corrupted", path)
		}
		if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
			return nil, errors.Wrapf(errs.ErrPermission, "chmod %s: %v", path, chmodErr)
		}
		var key [keySize]byte
		copy(key[:], decoded)
		return &key, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrapf(errs.ErrCrypto, "read key file %s: %v", path, err)
	}
	return s.generateKey(path)
}

func (s *Store) generateKey(path string) (*[keySize]byte, error) {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, errors.Wrapf(errs.ErrPermission, "create key directory %s: %v", s.dir, err)
	}
	var key [keySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, errors.Wrapf(errs.ErrCrypto, "generate key: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key[:])
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, errors.Wrapf(errs.ErrPermission, "write key file %s: %v", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return nil, errors.Wrapf(errs.ErrPermission, "chmod %s: %v", path, err)
	}
	return &key, nil
}

// Encrypt seals plaintext with a fresh random nonce. The empty string maps
// to the empty string so an unset password stays unset.
func (s *Store) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	key, err := s.EnsureKey()
	if err != nil {
		return "", err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", errors.Wrapf(errs.ErrCrypto, "generate nonce: %v", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any integrity failure is
// ErrCrypto; there is no plaintext fallback.
func (s *Store) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	key, err := s.EnsureKey()
	if err != nil {
		return "", err
	}
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Wrapf(errs.ErrCrypto, "ciphertext is not valid base64: %v", err)
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", errors.Wrap(errs.ErrCrypto, "ciphertext too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return "", errors.Wrap(errs.ErrCrypto, "ciphertext failed authentication")
	}
	return string(plain), nil
}
