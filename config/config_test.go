// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/oap-foundation/oaep-go/identity"
	"github.com/oap-foundation/oaep-go/types"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OAEP_KEY_PASSPHRASE", "correct horse")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.Identity.Method != "key" || cfg.Sessions.Store != StoreMemory {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Sessions.MaxAge != time.Hour || cfg.Sessions.SweepInterval != time.Minute {
		t.Fatalf("unexpected session defaults %+v", cfg.Sessions)
	}
	if cfg.Resolver.MaxDocumentBytes != 1<<20 || cfg.Resolver.Timeout != 10*time.Second {
		t.Fatalf("unexpected resolver defaults %+v", cfg.Resolver)
	}
	if cfg.Resolver.CacheSize != 1024 || cfg.Resolver.CacheTTL != time.Hour || cfg.HTTP.MaxBodyBytes != 1<<20 {
		t.Fatalf("unexpected limits %+v %+v", cfg.Resolver, cfg.HTTP)
	}
	if cfg.Sessions.VerifyProfiles {
		t.Fatal("profile verification must be opt-in")
	}
}

func TestLoadRequiresPassphrase(t *testing.T) {
	t.Setenv("OAEP_KEY_PASSPHRASE", "restored after the test")
	os.Unsetenv("OAEP_KEY_PASSPHRASE")
	if _, err := Load(""); err == nil {
		t.Fatal("expected an error without a passphrase")
	}
}

func TestLoadDotEnv(t *testing.T) {
	keys := []string{"OAEP_KEY_PASSPHRASE", "OAEP_DID_METHOD", "OAEP_WEB_DOMAIN", "OAEP_WEB_PATH", "OAEP_SESSION_STORE"}
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	// Explicit environment wins over the file.
	t.Setenv("OAEP_SESSION_STORE", "memory")

	path := filepath.Join(t.TempDir(), ".env")
	content := strings.Join([]string{
		"OAEP_KEY_PASSPHRASE=from-file",
		"OAEP_DID_METHOD=web",
		"OAEP_WEB_DOMAIN=agents.example.com",
		"OAEP_WEB_PATH=/teams/alice/",
		"OAEP_SESSION_STORE=redis",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Keys.Passphrase != "from-file" || cfg.Identity.Method != "web" || cfg.Identity.WebDomain != "agents.example.com" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Sessions.Store != StoreMemory {
		t.Fatalf("environment must override the file, got %s", cfg.Sessions.Store)
	}
	if got := cfg.Identity.WebPathSegments(); len(got) != 2 || got[0] != "teams" || got[1] != "alice" {
		t.Fatalf("unexpected path segments %v", got)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		Log:      LogConfig{Format: "json"},
		Identity: IdentityConfig{Method: "key"},
		Sessions: SessionConfig{Store: StoreRedis, SweepInterval: time.Second},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(c *Config){
		"web without domain": func(c *Config) { c.Identity.Method = "web" },
		"unknown method":     func(c *Config) { c.Identity.Method = "peer" },
		"unknown store":      func(c *Config) { c.Sessions.Store = "etcd" },
		"unknown format":     func(c *Config) { c.Log.Format = "xml" },
		"no sweep interval":  func(c *Config) { c.Sessions.SweepInterval = 0 },
	}
	for name, mutate := range cases {
		c := valid
		mutate(&c)
		var verr *types.ErrValidation
		if err := c.Validate(); !errors.As(err, &verr) {
			t.Errorf("%s: expected ErrValidation, got %v", name, err)
		}
	}
}

func TestWebPathSegments(t *testing.T) {
	for path, want := range map[string]int{"": 0, "/": 0, "alice": 1, "a/b/c": 3, "/a/b/": 2} {
		c := IdentityConfig{WebPath: path}
		if got := len(c.WebPathSegments()); got != want {
			t.Errorf("%q: got %d segments, want %d", path, got, want)
		}
	}
}

const manifestYAML = `
name: Alice's assistant
type: PersonalAgent
description: Books travel.
expiresIn: 720h
protocols:
  - protocol: OACP
    version: "1.0"
  - protocol: OAPP
    version: "0.9"
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(manifestYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Name != "Alice's assistant" || m.Type != types.AgentTypePersonal || m.ExpiresIn != 720*time.Hour {
		t.Fatalf("unexpected manifest %+v", m)
	}
	if len(m.Protocols) != 2 || m.Protocols[1].Version != "0.9" {
		t.Fatalf("unexpected protocols %+v", m.Protocols)
	}

	id, _ := identity.GenerateKeyIdentity()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	params := m.Params(id, now)
	if params.IssuanceDate != "2026-03-01T12:00:00Z" || params.ExpirationDate != "2026-03-31T12:00:00Z" {
		t.Fatalf("unexpected dates %s %s", params.IssuanceDate, params.ExpirationDate)
	}
	if params.Subject != id || len(params.Protocols) != 2 || params.Protocols[0].Protocol != "OACP" {
		t.Fatalf("unexpected params %+v", params)
	}
}

func TestParseManifestRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":  "name: a\ntype: PersonalAgent\ncolour: blue\n",
		"no name":      "type: PersonalAgent\n",
		"bad type":     "name: a\ntype: Robot\n",
		"bad protocol": "name: a\ntype: ServiceAgent\nprotocols:\n  - protocol: OACP\n",
		"bad duration": "name: a\ntype: ServiceAgent\nexpiresIn: soon\n",
	}
	for name, input := range cases {
		if _, err := ParseManifest([]byte(input)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(manifestYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadManifest(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := LoadManifest(path + ".missing"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
