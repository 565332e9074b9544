// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package profile implements the AgentProfile verifiable credential: a signed
// claim binding a DID to an agent name, category and the protocols it speaks.
package profile

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oap-foundation/oaep-go/identity"
	"github.com/oap-foundation/oaep-go/types"
)

const (
	// CredentialContext is the W3C Verifiable Credentials JSON-LD context.
	CredentialContext = "https://www.w3.org/2018/credentials/v1"
	// OAEPContext is the OAEP vocabulary context.
	OAEPContext = "https://w3id.org/oaep/v1"

	credentialType   = "VerifiableCredential"
	agentProfileType = "AgentProfile"
	proofPurpose     = "assertionMethod"
)

// AgentProfile is a W3C Verifiable Credential describing an agent.
// Values returned by this package are never modified in place; Sign returns
// a new value.
type AgentProfile struct {
	Context           []string          `json:"@context"`
	ID                string            `json:"id"`
	Type              []string          `json:"type"`
	Issuer            string            `json:"issuer"`
	IssuanceDate      string            `json:"issuanceDate"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`
	ExpirationDate    string            `json:"expirationDate,omitempty"`
	Proof             *Proof            `json:"proof,omitempty"`
}

// CredentialSubject names the profiled DID and its agent description.
type CredentialSubject struct {
	ID    string `json:"id"`
	Agent Agent  `json:"agent"`
}

// Agent is the claim carried by an AgentProfile.
type Agent struct {
	Type               types.AgentType `json:"type"`
	Name               string          `json:"name"`
	SupportedProtocols []Protocol      `json:"supportedProtocols"`
	Description        string          `json:"description,omitempty"`
}

// Protocol is a (protocol, version) pair an agent supports.
type Protocol struct {
	Protocol string `json:"protocol"`
	Version  string `json:"version"`
}

// Proof is the detached Ed25519Signature2020 proof of an AgentProfile.
type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	// ProofValue is the standard base64 encoding of the Ed25519 signature
	// over CanonicalBytes.
	ProofValue string `json:"proofValue"`
}

// Params carries the inputs of New.
type Params struct {
	// Subject is the identity the profile describes. Required.
	Subject identity.Identity
	// Type is the agent category. Required.
	Type types.AgentType
	// Name is the agent's display name. Required.
	Name string
	// Description is optional free text.
	Description string
	// Protocols lists the supported (protocol, version) pairs in order.
	Protocols []Protocol
	// Issuer defaults to the subject DID (self-issued).
	Issuer string
	// ID defaults to a fresh "urn:uuid:" identifier.
	ID string
	// IssuanceDate defaults to the current time in types.TimestampLayout.
	IssuanceDate string
	// ExpirationDate is carried verbatim when set.
	ExpirationDate string
}

// New builds an unsigned AgentProfile.
func New(params Params) (*AgentProfile, error) {
	if params.Subject == nil {
		return nil, &types.ErrValidation{Field: "subject", Reason: "is required"}
	}
	if params.Name == "" {
		return nil, &types.ErrValidation{Field: "name", Reason: "is required"}
	}
	if !params.Type.Valid() {
		return nil, &types.ErrValidation{Field: "type", Reason: fmt.Sprintf("unknown agent type %q", params.Type)}
	}

	subject := params.Subject.String()
	issuer := params.Issuer
	if issuer == "" {
		issuer = subject
	}
	id := params.ID
	if id == "" {
		id = "urn:uuid:" + uuid.NewString()
	}
	issued := params.IssuanceDate
	if issued == "" {
		issued = time.Now().UTC().Format(types.TimestampLayout)
	}

	protocols := make([]Protocol, len(params.Protocols))
	copy(protocols, params.Protocols)

	return &AgentProfile{
		Context:      []string{CredentialContext, OAEPContext},
		ID:           id,
		Type:         []string{credentialType, agentProfileType},
		Issuer:       issuer,
		IssuanceDate: issued,
		CredentialSubject: CredentialSubject{
			ID: subject,
			Agent: Agent{
				Type:               params.Type,
				Name:               params.Name,
				SupportedProtocols: protocols,
				Description:        params.Description,
			},
		},
		ExpirationDate: params.ExpirationDate,
	}, nil
}

// Parse decodes a profile previously rendered by JSON, including any proof.
func Parse(data []byte) (*AgentProfile, error) {
	var p AgentProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &types.ErrValidation{Field: "agentProfile", Reason: fmt.Sprintf("decode JSON: %v", err)}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the structural markers that make a credential an
// AgentProfile. It does not check the proof.
func (p *AgentProfile) Validate() error {
	if !p.hasType(agentProfileType) {
		return &types.ErrValidation{Field: "type", Reason: "credential is not an AgentProfile"}
	}
	if p.CredentialSubject.ID == "" {
		return &types.ErrValidation{Field: "credentialSubject.id", Reason: "is required"}
	}
	if !p.CredentialSubject.Agent.Type.Valid() {
		return &types.ErrValidation{
			Field:  "credentialSubject.agent.type",
			Reason: fmt.Sprintf("unknown agent type %q", p.CredentialSubject.Agent.Type),
		}
	}
	return nil
}

func (p *AgentProfile) hasType(t string) bool {
	for _, v := range p.Type {
		if v == t {
			return true
		}
	}
	return false
}

// JSON renders the full profile, proof included, in canonical form.
func (p *AgentProfile) JSON() ([]byte, error) {
	return canonicalJSON(p)
}

// CanonicalBytes returns the bytes covered by the proof: the canonical form
// of the profile with the proof removed.
func (p *AgentProfile) CanonicalBytes() ([]byte, error) {
	unsigned := p.clone()
	unsigned.Proof = nil
	return canonicalJSON(unsigned)
}

// Sign returns a copy of p carrying a fresh proof made by issuer. Any
// existing proof is replaced; p itself is left untouched.
func (p *AgentProfile) Sign(issuer identity.Identity) (*AgentProfile, error) {
	signed := p.clone()
	signed.Proof = nil

	canonical, err := canonicalJSON(signed)
	if err != nil {
		return nil, err
	}
	sig, err := issuer.Sign(canonical)
	if err != nil {
		return nil, fmt.Errorf("profile: sign: %w", err)
	}

	signed.Proof = &Proof{
		Type:               string(types.ProofTypeEd25519Signature),
		Created:            time.Now().UTC().Format(types.TimestampLayout),
		VerificationMethod: issuer.String() + "#key-1",
		ProofPurpose:       proofPurpose,
		ProofValue:         base64.StdEncoding.EncodeToString(sig),
	}
	return signed, nil
}

// Verify checks the proof against issuer. A missing, malformed or
// non-matching proof yields false; an error means the issuer's key could
// not be obtained.
func (p *AgentProfile) Verify(ctx context.Context, issuer identity.Identity) (bool, error) {
	if p.Proof == nil || p.Proof.Type != string(types.ProofTypeEd25519Signature) {
		return false, nil
	}
	sig, err := base64.StdEncoding.DecodeString(p.Proof.ProofValue)
	if err != nil {
		return false, nil
	}
	canonical, err := p.CanonicalBytes()
	if err != nil {
		return false, err
	}
	ok, err := issuer.Verify(ctx, canonical, sig)
	if err != nil {
		return false, fmt.Errorf("profile: verify: %w", err)
	}
	return ok, nil
}

// IsSigned reports whether the profile carries a proof.
func (p *AgentProfile) IsSigned() bool { return p.Proof != nil }

// IsExpired reports whether the expiration date has passed.
func (p *AgentProfile) IsExpired() bool { return p.IsExpiredAt(time.Now()) }

// IsExpiredAt reports whether the profile is expired at t. A profile without
// an expiration date never expires; an unparseable one is always expired.
func (p *AgentProfile) IsExpiredAt(t time.Time) bool {
	if p.ExpirationDate == "" {
		return false
	}
	exp, err := time.Parse(time.RFC3339, p.ExpirationDate)
	if err != nil {
		return true
	}
	return t.After(exp)
}

// SupportsProtocol reports whether the agent lists name, and the optional
// version when one is given.
func (p *AgentProfile) SupportsProtocol(name string, version ...string) bool {
	for _, proto := range p.CredentialSubject.Agent.SupportedProtocols {
		if proto.Protocol != name {
			continue
		}
		if len(version) == 0 || proto.Version == version[0] {
			return true
		}
	}
	return false
}

// SubjectDID returns credentialSubject.id.
func (p *AgentProfile) SubjectDID() string { return p.CredentialSubject.ID }

func (p *AgentProfile) clone() *AgentProfile {
	c := *p
	c.Context = append([]string(nil), p.Context...)
	c.Type = append([]string(nil), p.Type...)
	if p.CredentialSubject.Agent.SupportedProtocols != nil {
		c.CredentialSubject.Agent.SupportedProtocols = append([]Protocol{}, p.CredentialSubject.Agent.SupportedProtocols...)
	}
	if p.Proof != nil {
		proof := *p.Proof
		c.Proof = &proof
	}
	return &c
}
