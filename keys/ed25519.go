// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package keys holds Ed25519 key material for OAEP identities: generation,
// the multibase public key codec, and key stores.
package keys

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/oap-foundation/oaep-go/types"
)

// KeyPair is an Ed25519 key pair. PrivateKey is nil for public-only pairs.
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 key pair from crypto/rand.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keys: generate Ed25519 key: %w", err)
	}
	return &KeyPair{PublicKey: pub, PrivateKey: priv}, nil
}

// NewKeyPair reconstructs a key pair from raw bytes. privateKey may be nil.
// When present it must be a 64-byte Ed25519 private key whose public half
// equals publicKey.
func NewKeyPair(publicKey, privateKey []byte) (*KeyPair, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, &types.ErrValidation{
			Field:  "publicKey",
			Reason: fmt.Sprintf("expected %d bytes, got %d", ed25519.PublicKeySize, len(publicKey)),
		}
	}
	kp := &KeyPair{PublicKey: append(ed25519.PublicKey(nil), publicKey...)}
	if privateKey == nil {
		return kp, nil
	}
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, &types.ErrValidation{
			Field:  "privateKey",
			Reason: fmt.Sprintf("expected %d bytes, got %d", ed25519.PrivateKeySize, len(privateKey)),
		}
	}
	priv := append(ed25519.PrivateKey(nil), privateKey...)
	if !bytes.Equal(priv.Public().(ed25519.PublicKey), kp.PublicKey) {
		return nil, &types.ErrValidation{Field: "privateKey", Reason: "does not match public key"}
	}
	kp.PrivateKey = priv
	return kp, nil
}

// HasPrivateKey reports whether the pair can sign.
func (kp *KeyPair) HasPrivateKey() bool {
	return kp != nil && len(kp.PrivateKey) == ed25519.PrivateKeySize
}

// Sign produces an Ed25519 signature over message.
func (kp *KeyPair) Sign(message []byte) ([]byte, error) {
	if !kp.HasPrivateKey() {
		return nil, fmt.Errorf("keys: sign: private key not available")
	}
	return ed25519.Sign(kp.PrivateKey, message), nil
}

// Verify reports whether signature is a valid Ed25519 signature over message.
// Malformed keys or signatures yield false rather than a panic.
func Verify(publicKey ed25519.PublicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}
