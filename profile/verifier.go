// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oap-foundation/oaep-go/identity"
	"github.com/oap-foundation/oaep-go/types"
)

// VerificationResult is returned by Verifier.Verify.
type VerificationResult struct {
	// Valid is true when the proof verifies against the issuer, the profile
	// has not expired and the subject matches the expected DID.
	Valid bool
	// IssuerDID is the profile's issuer field.
	IssuerDID string
	// SubjectID is credentialSubject.id.
	SubjectID string
	// CredentialID is the profile's id field.
	CredentialID string
	// ExpiresAt is the parsed expiration date, if present.
	ExpiresAt *time.Time
	// Reason is populated when Valid is false.
	Reason string
}

// Verifier checks AgentProfiles against their declared issuer, resolving the
// issuer DID through an identity.Resolver.
type Verifier struct {
	resolver *identity.Resolver
	now      func() time.Time
}

// NewVerifier constructs a Verifier backed by resolver.
func NewVerifier(resolver *identity.Resolver) *Verifier {
	return &Verifier{resolver: resolver, now: time.Now}
}

// Verify checks p. When expectedSubject is non-empty the credential subject
// must equal it. Failed checks are reported in the result; an error means
// the issuer could not be resolved.
func (v *Verifier) Verify(ctx context.Context, p *AgentProfile, expectedSubject string) (*VerificationResult, error) {
	if p == nil {
		return nil, fmt.Errorf("profile: verifier: profile must not be nil")
	}
	result := &VerificationResult{
		IssuerDID:    p.Issuer,
		SubjectID:    p.CredentialSubject.ID,
		CredentialID: p.ID,
	}
	invalid := func(format string, args ...any) (*VerificationResult, error) {
		result.Reason = fmt.Sprintf(format, args...)
		return result, nil
	}

	if p.Proof == nil {
		return invalid("credential has no proof")
	}
	if p.Proof.Type != string(types.ProofTypeEd25519Signature) {
		return invalid("unsupported proof type: %s", p.Proof.Type)
	}
	if !strings.HasPrefix(p.Proof.VerificationMethod, p.Issuer+"#") {
		return invalid("verification method %s does not belong to issuer %s", p.Proof.VerificationMethod, p.Issuer)
	}
	if expectedSubject != "" && p.CredentialSubject.ID != expectedSubject {
		return invalid("credential subject %s does not match %s", p.CredentialSubject.ID, expectedSubject)
	}

	// Check expiry before resolving the issuer to fail fast.
	if p.ExpirationDate != "" {
		if exp, err := time.Parse(time.RFC3339, p.ExpirationDate); err == nil {
			result.ExpiresAt = &exp
		}
		if p.IsExpiredAt(v.now()) {
			return invalid("credential has expired")
		}
	}

	issuer, err := v.resolver.Identity(p.Issuer)
	if err != nil {
		return nil, fmt.Errorf("profile: verifier: issuer %s: %w", p.Issuer, err)
	}
	ok, err := p.Verify(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("profile: verifier: %w", err)
	}
	if !ok {
		return invalid("Ed25519 signature is invalid")
	}

	result.Valid = true
	return result, nil
}
