// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oap-foundation/oaep-go/identity"
	"github.com/oap-foundation/oaep-go/profile"
	"github.com/oap-foundation/oaep-go/types"
)

// Manifest describes the agent profile a node issues for itself.
//
//	name: Alice's assistant
//	type: PersonalAgent
//	description: Books travel.
//	expiresIn: 720h
//	protocols:
//	  - protocol: OACP
//	    version: "1.0"
type Manifest struct {
	Name        string             `yaml:"name"`
	Type        types.AgentType    `yaml:"type"`
	Description string             `yaml:"description"`
	ExpiresIn   time.Duration      `yaml:"expiresIn"`
	Protocols   []ManifestProtocol `yaml:"protocols"`
}

type ManifestProtocol struct {
	Protocol string `yaml:"protocol"`
	Version  string `yaml:"version"`
}

// LoadManifest reads and parses the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes a YAML manifest. Unknown keys are rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("config: parse manifest: %w", err)
	}
	if m.Name == "" {
		return nil, &types.ErrValidation{Field: "name", Reason: "is required"}
	}
	if !m.Type.Valid() {
		return nil, &types.ErrValidation{Field: "type", Reason: fmt.Sprintf("unknown agent type %q", m.Type)}
	}
	if m.ExpiresIn < 0 {
		return nil, &types.ErrValidation{Field: "expiresIn", Reason: "must not be negative"}
	}
	for i, p := range m.Protocols {
		if p.Protocol == "" || p.Version == "" {
			return nil, &types.ErrValidation{Field: fmt.Sprintf("protocols[%d]", i), Reason: "protocol and version are required"}
		}
	}
	return &m, nil
}

// Params turns the manifest into profile parameters for subject, issued at now.
func (m *Manifest) Params(subject identity.Identity, now time.Time) profile.Params {
	params := profile.Params{
		Subject:      subject,
		Type:         m.Type,
		Name:         m.Name,
		Description:  m.Description,
		IssuanceDate: now.UTC().Format(types.TimestampLayout),
	}
	if m.ExpiresIn > 0 {
		params.ExpirationDate = now.Add(m.ExpiresIn).UTC().Format(types.TimestampLayout)
	}
	for _, p := range m.Protocols {
		params.Protocols = append(params.Protocols, profile.Protocol{Protocol: p.Protocol, Version: p.Version})
	}
	return params
}
