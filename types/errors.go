// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package types

import "fmt"

// ErrFormat is returned when a textual identifier or encoding is malformed.
type ErrFormat struct {
	Input  string
	Reason string
}

func (e *ErrFormat) Error() string {
	return fmt.Sprintf("malformed %q: %s", e.Input, e.Reason)
}

// ErrValidation is returned for well-formed but semantically invalid input,
// such as a wrong key length or an unknown agent type.
type ErrValidation struct {
	Field  string
	Reason string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrPrivateKeyUnavailable is returned when signing is attempted by an
// identity that holds only a public key.
type ErrPrivateKeyUnavailable struct {
	DID string
}

func (e *ErrPrivateKeyUnavailable) Error() string {
	return fmt.Sprintf("private key not available for %s", e.DID)
}

// ErrResolution is returned when a did:web document cannot be fetched or
// does not carry usable verification material.
type ErrResolution struct {
	DID    string
	URL    string
	Reason string
}

func (e *ErrResolution) Error() string {
	if e.DID == "" {
		return fmt.Sprintf("DID document fetch failed for %s: %s", e.URL, e.Reason)
	}
	return fmt.Sprintf("DID resolution failed for %s: %s", e.DID, e.Reason)
}

// ErrDocumentMismatch is returned when a resolved document declares a
// different identifier than the one that was requested.
type ErrDocumentMismatch struct {
	Expected string
	Got      string
}

func (e *ErrDocumentMismatch) Error() string {
	return fmt.Sprintf("DID document id %q does not match %q", e.Got, e.Expected)
}

// ErrInvalidMessage is returned when a protocol message is missing required
// fields or carries the wrong type tag.
type ErrInvalidMessage struct {
	Type   MessageType
	Reason string
}

func (e *ErrInvalidMessage) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("invalid message: %s", e.Reason)
	}
	return fmt.Sprintf("invalid %s message: %s", e.Type, e.Reason)
}

// ErrSessionNotFound is returned for unknown, terminated and swept sessions
// alike.
type ErrSessionNotFound struct {
	SessionID string
}

func (e *ErrSessionNotFound) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

// ErrInvalidState is returned when a session is not in the state an
// operation requires.
type ErrInvalidState struct {
	SessionID string
	State     SessionState
}

func (e *ErrInvalidState) Error() string {
	return fmt.Sprintf("session %s is in state %s", e.SessionID, e.State)
}

// ErrSessionExpired is returned when a challenge response arrives after the
// challenge lifetime has elapsed.
type ErrSessionExpired struct {
	SessionID string
}

func (e *ErrSessionExpired) Error() string {
	return fmt.Sprintf("session expired: %s", e.SessionID)
}
