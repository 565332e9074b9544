// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package identity implements the two OAEP identity variants: self-certifying
// did:key identities and domain-anchored did:web identities whose
// verification material is fetched through a DocumentFetcher.
package identity

import (
	"context"
	"crypto/ed25519"
	"strings"

	"github.com/oap-foundation/oaep-go/types"
)

// Identity is a cryptographic principal addressed by a DID.
//
// String is a pure function of the method and the key or domain; two
// identities with equal strings are interchangeable for verification.
type Identity interface {
	// Method returns the DID method of this identity.
	Method() types.DIDMethod
	// String returns the canonical DID.
	String() string
	// PublicKey returns the Ed25519 public key, resolving it first if needed.
	PublicKey(ctx context.Context) (ed25519.PublicKey, error)
	// HasPrivateKey reports whether Sign can succeed.
	HasPrivateKey() bool
	// Sign signs data exactly as given. It fails with
	// *types.ErrPrivateKeyUnavailable when no private key is held.
	Sign(data []byte) ([]byte, error)
	// Verify reports whether signature is valid over data. A mismatch is
	// (false, nil); an error means verification could not run.
	Verify(ctx context.Context, data, signature []byte) (bool, error)
	// Resolve returns the DID document for this identity.
	Resolve(ctx context.Context) (*DIDDocument, error)
}

// ParseDIDMethod extracts the method from a DID (e.g. "key" from "did:key:...").
func ParseDIDMethod(did string) (types.DIDMethod, error) {
	parts := strings.SplitN(did, ":", 3)
	if len(parts) < 3 || parts[0] != "did" {
		return "", &types.ErrFormat{Input: did, Reason: "must start with 'did:<method>:'"}
	}
	switch parts[1] {
	case "key":
		return types.DIDMethodKey, nil
	case "web":
		return types.DIDMethodWeb, nil
	default:
		return "", &types.ErrFormat{Input: did, Reason: "unsupported DID method " + parts[1]}
	}
}
