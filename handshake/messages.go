// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package handshake

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/oap-foundation/oaep-go/profile"
	"github.com/oap-foundation/oaep-go/types"
)

// ProtocolVersion is the only message version this package speaks.
const ProtocolVersion = "1.0"

// Message is implemented by the three handshake messages.
type Message interface {
	MessageType() types.MessageType
}

// ConnectionRequest opens a handshake (step 1).
type ConnectionRequest struct {
	Type         types.MessageType     `json:"type" validate:"required"`
	Version      string                `json:"version" validate:"required,eq=1.0"`
	From         string                `json:"from" validate:"required,startswith=did:"`
	To           string                `json:"to" validate:"required,startswith=did:"`
	Timestamp    int64                 `json:"timestamp" validate:"required,gt=0"`
	AgentProfile *profile.AgentProfile `json:"agentProfile" validate:"required"`
}

// ConnectionChallenge answers a request with a fresh nonce (step 2).
type ConnectionChallenge struct {
	Type         types.MessageType     `json:"type" validate:"required"`
	Version      string                `json:"version" validate:"required,eq=1.0"`
	SessionID    string                `json:"sessionId" validate:"required,hexadecimal,len=32"`
	From         string                `json:"from" validate:"required,startswith=did:"`
	To           string                `json:"to" validate:"required,startswith=did:"`
	Timestamp    int64                 `json:"timestamp" validate:"required,gt=0"`
	Challenge    string                `json:"challenge" validate:"required,hexadecimal,len=64"`
	AgentProfile *profile.AgentProfile `json:"agentProfile" validate:"required"`
}

// ConnectionResponse carries the signature over the challenge (step 3).
type ConnectionResponse struct {
	Type              types.MessageType `json:"type" validate:"required"`
	Version           string            `json:"version" validate:"required,eq=1.0"`
	SessionID         string            `json:"sessionId" validate:"required,hexadecimal,len=32"`
	From              string            `json:"from" validate:"required,startswith=did:"`
	To                string            `json:"to" validate:"required,startswith=did:"`
	Timestamp         int64             `json:"timestamp" validate:"required,gt=0"`
	ChallengeResponse string            `json:"challengeResponse" validate:"required"`
}

func (*ConnectionRequest) MessageType() types.MessageType   { return types.MessageConnectionRequest }
func (*ConnectionChallenge) MessageType() types.MessageType { return types.MessageConnectionChallenge }
func (*ConnectionResponse) MessageType() types.MessageType  { return types.MessageConnectionResponse }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON field names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateMessage checks the type tag and field constraints of msg, and the
// structure of an embedded agent profile.
func validateMessage(expected, tag types.MessageType, msg Message) error {
	if tag != expected {
		return &types.ErrInvalidMessage{Type: expected, Reason: fmt.Sprintf("unexpected type tag %q", tag)}
	}
	if err := validate.Struct(msg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			out := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				out = append(out, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
			}
			return &types.ErrInvalidMessage{Type: expected, Reason: strings.Join(out, "; ")}
		}
		return &types.ErrInvalidMessage{Type: expected, Reason: err.Error()}
	}

	var prof *profile.AgentProfile
	switch m := msg.(type) {
	case *ConnectionRequest:
		prof = m.AgentProfile
	case *ConnectionChallenge:
		prof = m.AgentProfile
	}
	if prof != nil {
		if err := prof.Validate(); err != nil {
			return &types.ErrInvalidMessage{Type: expected, Reason: "agentProfile: " + err.Error()}
		}
	}
	return nil
}

// Validate checks the message shape.
func (m *ConnectionRequest) Validate() error {
	if m == nil {
		return &types.ErrInvalidMessage{Type: types.MessageConnectionRequest, Reason: "message is nil"}
	}
	return validateMessage(types.MessageConnectionRequest, m.Type, m)
}

// Validate checks the message shape.
func (m *ConnectionChallenge) Validate() error {
	if m == nil {
		return &types.ErrInvalidMessage{Type: types.MessageConnectionChallenge, Reason: "message is nil"}
	}
	return validateMessage(types.MessageConnectionChallenge, m.Type, m)
}

// Validate checks the message shape.
func (m *ConnectionResponse) Validate() error {
	if m == nil {
		return &types.ErrInvalidMessage{Type: types.MessageConnectionResponse, Reason: "message is nil"}
	}
	return validateMessage(types.MessageConnectionResponse, m.Type, m)
}

// DecodeMessage parses a raw JSON message, dispatching on its type tag, and
// validates it.
func DecodeMessage(data []byte) (Message, error) {
	var envelope struct {
		Type types.MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, &types.ErrInvalidMessage{Reason: fmt.Sprintf("decode JSON: %v", err)}
	}

	var msg interface {
		Message
		Validate() error
	}
	switch envelope.Type {
	case types.MessageConnectionRequest:
		msg = &ConnectionRequest{}
	case types.MessageConnectionChallenge:
		msg = &ConnectionChallenge{}
	case types.MessageConnectionResponse:
		msg = &ConnectionResponse{}
	default:
		return nil, &types.ErrInvalidMessage{Reason: fmt.Sprintf("unknown message type %q", envelope.Type)}
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, &types.ErrInvalidMessage{Type: envelope.Type, Reason: fmt.Sprintf("decode JSON: %v", err)}
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}
