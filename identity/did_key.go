// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package identity

import (
	"context"
	"crypto/ed25519"
	"strings"

	"github.com/oap-foundation/oaep-go/keys"
	"github.com/oap-foundation/oaep-go/types"
)

const keyDIDPrefix = "did:key:"

// KeyIdentity is a did:key identity. Its DID embeds the public key, so it
// never needs a network lookup.
type KeyIdentity struct {
	pair *keys.KeyPair
}

var _ Identity = (*KeyIdentity)(nil)

// GenerateKeyIdentity creates a did:key identity with a fresh key pair.
func GenerateKeyIdentity() (*KeyIdentity, error) {
	kp, err := keys.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &KeyIdentity{pair: kp}, nil
}

// NewKeyIdentity reconstructs a did:key identity from raw key material.
// privateKey may be nil for a verify-only identity.
func NewKeyIdentity(publicKey, privateKey []byte) (*KeyIdentity, error) {
	kp, err := keys.NewKeyPair(publicKey, privateKey)
	if err != nil {
		return nil, err
	}
	return &KeyIdentity{pair: kp}, nil
}

// ParseKeyDID parses "did:key:<multibase>". The result holds no private key.
func ParseKeyDID(did string) (*KeyIdentity, error) {
	if !strings.HasPrefix(did, keyDIDPrefix) {
		return nil, &types.ErrFormat{Input: did, Reason: "not a did:key DID"}
	}
	publicKey, err := keys.DecodePublicKey(strings.TrimPrefix(did, keyDIDPrefix))
	if err != nil {
		return nil, err
	}
	return &KeyIdentity{pair: &keys.KeyPair{PublicKey: publicKey}}, nil
}

func (k *KeyIdentity) Method() types.DIDMethod { return types.DIDMethodKey }

func (k *KeyIdentity) String() string {
	return keyDIDPrefix + keys.EncodePublicKey(k.pair.PublicKey)
}

func (k *KeyIdentity) PublicKey(context.Context) (ed25519.PublicKey, error) {
	return k.pair.PublicKey, nil
}

func (k *KeyIdentity) HasPrivateKey() bool { return k.pair.HasPrivateKey() }

// KeyPair exposes the underlying key pair, e.g. for persisting it in a keys.KeyStore.
func (k *KeyIdentity) KeyPair() *keys.KeyPair { return k.pair }

func (k *KeyIdentity) Sign(data []byte) ([]byte, error) {
	if !k.pair.HasPrivateKey() {
		return nil, &types.ErrPrivateKeyUnavailable{DID: k.String()}
	}
	return k.pair.Sign(data)
}

func (k *KeyIdentity) Verify(_ context.Context, data, signature []byte) (bool, error) {
	return keys.Verify(k.pair.PublicKey, data, signature), nil
}

// Resolve synthesizes the did:key document locally. The verification method
// id is the DID followed by "#" and the multibase fingerprint.
func (k *KeyIdentity) Resolve(context.Context) (*DIDDocument, error) {
	did := k.String()
	vmID := did + "#" + strings.TrimPrefix(did, keyDIDPrefix)
	return buildDocument(did, vmID, k.pair.PublicKey, nil), nil
}
