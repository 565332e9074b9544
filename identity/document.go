// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package identity

import (
	"crypto/ed25519"
	"fmt"

	"github.com/oap-foundation/oaep-go/keys"
	"github.com/oap-foundation/oaep-go/types"
)

// documentContext is the JSON-LD context of every DID document this package builds.
var documentContext = []string{
	"https://www.w3.org/ns/did/v1",
	"https://w3id.org/security/suites/ed25519-2020/v1",
}

// DIDDocument represents a W3C DID Document.
type DIDDocument struct {
	Context              []string             `json:"@context"`
	ID                   string               `json:"id"`
	VerificationMethod   []VerificationMethod `json:"verificationMethod"`
	Authentication       []string             `json:"authentication"`
	AssertionMethod      []string             `json:"assertionMethod"`
	CapabilityDelegation []string             `json:"capabilityDelegation,omitempty"`
	CapabilityInvocation []string             `json:"capabilityInvocation,omitempty"`
	Service              []Service            `json:"service,omitempty"`
}

// VerificationMethod is an entry in a DID Document's verificationMethod array.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

// Service is an entry in a DID Document's service array.
type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// buildDocument lists publicKey under a single verification method vmID and
// references it from all four verification relationships.
func buildDocument(did, vmID string, publicKey ed25519.PublicKey, services []Service) *DIDDocument {
	doc := &DIDDocument{
		Context: append([]string(nil), documentContext...),
		ID:      did,
		VerificationMethod: []VerificationMethod{{
			ID:                 vmID,
			Type:               string(types.VerificationMethodEd25519),
			Controller:         did,
			PublicKeyMultibase: keys.EncodePublicKey(publicKey),
		}},
		Authentication:       []string{vmID},
		AssertionMethod:      []string{vmID},
		CapabilityDelegation: []string{vmID},
		CapabilityInvocation: []string{vmID},
	}
	if len(services) > 0 {
		doc.Service = append([]Service(nil), services...)
	}
	return doc
}

// PublicKeyFromDocument decodes the Ed25519 key of the document's first
// verification method.
func PublicKeyFromDocument(doc *DIDDocument) (ed25519.PublicKey, error) {
	if doc == nil || len(doc.VerificationMethod) == 0 {
		return nil, fmt.Errorf("identity: DID document has no verification method")
	}
	vm := doc.VerificationMethod[0]
	if vm.PublicKeyMultibase == "" {
		return nil, fmt.Errorf("identity: verification method %s has no publicKeyMultibase", vm.ID)
	}
	publicKey, err := keys.DecodePublicKey(vm.PublicKeyMultibase)
	if err != nil {
		return nil, fmt.Errorf("identity: decode publicKeyMultibase: %w", err)
	}
	return publicKey, nil
}
