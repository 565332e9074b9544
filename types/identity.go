// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package types defines shared value types used across the OAEP trust core.
package types

// DIDMethod enumerates the supported Decentralized Identifier methods.
type DIDMethod string

const (
	DIDMethodWeb DIDMethod = "web"
	DIDMethodKey DIDMethod = "key"
)

// VerificationMethodType identifies the type of a DID verification method.
type VerificationMethodType string

const (
	VerificationMethodEd25519 VerificationMethodType = "Ed25519VerificationKey2020"
)

// ProofType identifies the type of a Linked Data Proof.
type ProofType string

const (
	ProofTypeEd25519Signature ProofType = "Ed25519Signature2020"
)

// TimestampLayout is the second-granularity UTC layout used for every
// credential timestamp.
const TimestampLayout = "2006-01-02T15:04:05Z"

// AgentType is the closed set of agent categories an AgentProfile may claim.
type AgentType string

const (
	// AgentTypePersonal is an agent acting on behalf of a single person.
	AgentTypePersonal AgentType = "PersonalAgent"
	// AgentTypeService is an agent exposing a service to other agents.
	AgentTypeService AgentType = "ServiceAgent"
	// AgentTypeOrganization is an agent representing an organization.
	AgentTypeOrganization AgentType = "OrganizationAgent"
)

// Valid reports whether t is one of the known agent types.
func (t AgentType) Valid() bool {
	switch t {
	case AgentTypePersonal, AgentTypeService, AgentTypeOrganization:
		return true
	}
	return false
}

// SessionState is the lifecycle state of a handshake session.
type SessionState string

const (
	// SessionChallengeSent means a challenge was issued and no valid
	// response has been verified yet.
	SessionChallengeSent SessionState = "CHALLENGE_SENT"
	// SessionConnected means the remote party proved possession of its key.
	SessionConnected SessionState = "CONNECTED"
)

// Valid reports whether s is one of the known session states.
func (s SessionState) Valid() bool {
	return s == SessionChallengeSent || s == SessionConnected
}

// MessageType tags the three handshake protocol messages.
type MessageType string

const (
	MessageConnectionRequest   MessageType = "ConnectionRequest"
	MessageConnectionChallenge MessageType = "ConnectionChallenge"
	MessageConnectionResponse  MessageType = "ConnectionResponse"
)
