// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package keys

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	sealedEnvelopeVersion = 1
	sealedKDF             = "argon2id"
	defaultArgonTime      = uint32(2)
	defaultArgonMemKB     = uint32(64 * 1024)
	defaultArgonThreads   = uint8(1)
	sealedFileSuffix      = ".key.json"
)

// SealedKey is the on-disk form of a key pair. The Ed25519 seed is
// encrypted with XChaCha20-Poly1305 under an argon2id-derived key; the DID
// is bound as associated data.
type SealedKey struct {
	Version            int    `json:"version"`
	DID                string `json:"did"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
	KDF                string `json:"kdf"`
	KDFTime            uint32 `json:"kdfTime"`
	KDFMemoryKB        uint32 `json:"kdfMemoryKb"`
	KDFThreads         uint8  `json:"kdfThreads"`
	Salt               []byte `json:"salt"`
	Nonce              []byte `json:"nonce"`
	Ciphertext         []byte `json:"ciphertext"`
}

// Seal encrypts kp's private key under passphrase.
func Seal(did string, kp *KeyPair, passphrase []byte) (*SealedKey, error) {
	if !kp.HasPrivateKey() {
		return nil, fmt.Errorf("keys: seal: private key not available")
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("keys: seal: salt: %w", err)
	}
	key := argon2.IDKey(passphrase, salt, defaultArgonTime, defaultArgonMemKB, defaultArgonThreads, chacha20poly1305.KeySize)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("keys: seal: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("keys: seal: nonce: %w", err)
	}

	return &SealedKey{
		Version:            sealedEnvelopeVersion,
		DID:                did,
		PublicKeyMultibase: EncodePublicKey(kp.PublicKey),
		KDF:                sealedKDF,
		KDFTime:            defaultArgonTime,
		KDFMemoryKB:        defaultArgonMemKB,
		KDFThreads:         defaultArgonThreads,
		Salt:               salt,
		Nonce:              nonce,
		Ciphertext:         aead.Seal(nil, nonce, kp.PrivateKey.Seed(), []byte(did)),
	}, nil
}

// Open decrypts a sealed key. A wrong passphrase or a tampered envelope is
// an error; no partial key is ever returned.
func Open(env *SealedKey, passphrase []byte) (*KeyPair, error) {
	if env.Version != sealedEnvelopeVersion {
		return nil, fmt.Errorf("keys: open: unsupported envelope version %d", env.Version)
	}
	if env.KDF != sealedKDF {
		return nil, fmt.Errorf("keys: open: unsupported kdf %s", env.KDF)
	}
	key := argon2.IDKey(passphrase, env.Salt, env.KDFTime, env.KDFMemoryKB, env.KDFThreads, chacha20poly1305.KeySize)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("keys: open: %w", err)
	}
	seed, err := aead.Open(nil, env.Nonce, env.Ciphertext, []byte(env.DID))
	if err != nil {
		return nil, fmt.Errorf("keys: open: decrypt %s: %w", env.DID, err)
	}
	defer zeroBytes(seed)
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keys: open: unexpected seed length %d", len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	if env.PublicKeyMultibase != "" {
		declared, err := DecodePublicKey(env.PublicKeyMultibase)
		if err != nil {
			return nil, fmt.Errorf("keys: open: %w", err)
		}
		if !bytes.Equal(declared, pub) {
			return nil, fmt.Errorf("keys: open: public key does not match sealed seed for %s", env.DID)
		}
	}
	return &KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// FileKeyStore is a KeyStore that keeps one sealed JSON file per DID in a
// directory. All files share one passphrase.
type FileKeyStore struct {
	mu         sync.Mutex
	dir        string
	passphrase []byte
}

// NewFileKeyStore creates dir if needed and returns a store rooted there.
func NewFileKeyStore(dir string, passphrase []byte) (*FileKeyStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("keys: key directory must not be empty")
	}
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("keys: passphrase must not be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("keys: create key directory: %w", err)
	}
	return &FileKeyStore{dir: dir, passphrase: append([]byte(nil), passphrase...)}, nil
}

func (s *FileKeyStore) path(did string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(did))+sealedFileSuffix)
}

func (s *FileKeyStore) Put(_ context.Context, did string, kp *KeyPair) error {
	if did == "" {
		return fmt.Errorf("keys: DID must not be empty")
	}
	env, err := Seal(did, kp, s.passphrase)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("keys: marshal sealed key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(did)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("keys: write sealed key: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("keys: write sealed key: %w", err)
	}
	return nil
}

func (s *FileKeyStore) Get(_ context.Context, did string) (*KeyPair, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path(did))
	s.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, did)
	}
	if err != nil {
		return nil, fmt.Errorf("keys: read sealed key: %w", err)
	}

	var env SealedKey
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("keys: parse sealed key: %w", err)
	}
	if env.DID != did {
		return nil, fmt.Errorf("keys: sealed key file holds %s, not %s", env.DID, did)
	}
	return Open(&env, s.passphrase)
}

func (s *FileKeyStore) Delete(_ context.Context, did string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(did)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("keys: delete sealed key: %w", err)
	}
	return nil
}

// List returns the DIDs of all sealed keys in the directory, in lexical order.
func (s *FileKeyStore) List(_ context.Context) ([]string, error) {
	s.mu.Lock()
	entries, err := os.ReadDir(s.dir)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("keys: list key directory: %w", err)
	}

	var dids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, sealedFileSuffix) {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, sealedFileSuffix))
		if err != nil {
			continue
		}
		dids = append(dids, string(raw))
	}
	sort.Strings(dids)
	return dids, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
