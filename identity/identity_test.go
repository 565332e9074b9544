// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package identity

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oap-foundation/oaep-go/types"
)

func TestKeyIdentityStringRoundTrip(t *testing.T) {
	for i := 0; i < 32; i++ {
		id, err := GenerateKeyIdentity()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		did := id.String()
		if !strings.HasPrefix(did, "did:key:z6Mk") {
			t.Fatalf("unexpected DID %s", did)
		}
		if did != id.String() {
			t.Fatal("String must be stable")
		}
		parsed, err := ParseKeyDID(did)
		if err != nil {
			t.Fatalf("parse %s: %v", did, err)
		}
		if parsed.String() != did {
			t.Fatalf("round trip mismatch: %s != %s", parsed.String(), did)
		}
		if parsed.HasPrivateKey() {
			t.Fatal("parsed identity must not hold a private key")
		}
	}
}

func TestKeyIdentitySignVerify(t *testing.T) {
	ctx := context.Background()
	alice, _ := GenerateKeyIdentity()
	bob, _ := GenerateKeyIdentity()

	for _, msg := range [][]byte{nil, []byte(""), []byte("hello"), bytes.Repeat([]byte{0xff}, 4096)} {
		sig, err := alice.Sign(msg)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if len(sig) != ed25519.SignatureSize {
			t.Fatalf("signature length %d", len(sig))
		}
		ok, err := alice.Verify(ctx, msg, sig)
		if err != nil || !ok {
			t.Fatalf("own signature rejected: ok=%v err=%v", ok, err)
		}
		bobSig, _ := bob.Sign(msg)
		if ok, _ := alice.Verify(ctx, msg, bobSig); ok {
			t.Fatal("foreign signature accepted")
		}
	}

	sig, _ := alice.Sign([]byte("m"))
	if ok, err := alice.Verify(ctx, []byte("m"), sig[:10]); ok || err != nil {
		t.Fatalf("short signature: ok=%v err=%v", ok, err)
	}

	verifier, _ := ParseKeyDID(alice.String())
	if ok, _ := verifier.Verify(ctx, []byte("m"), sig); !ok {
		t.Fatal("parsed identity must verify the original signature")
	}
	var perr *types.ErrPrivateKeyUnavailable
	if _, err := verifier.Sign([]byte("m")); !errors.As(err, &perr) {
		t.Fatalf("expected ErrPrivateKeyUnavailable, got %v", err)
	}
}

func TestNewKeyIdentity(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	id, err := NewKeyIdentity(pub, priv)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !id.HasPrivateKey() {
		t.Fatal("expected private key")
	}

	var verr *types.ErrValidation
	if _, err := NewKeyIdentity(pub[:31], nil); !errors.As(err, &verr) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestParseKeyDIDErrors(t *testing.T) {
	for _, did := range []string{
		"",
		"did:web:example.com",
		"did:key:",
		"did:key:abc",
		"did:key:z0OIl",
		"DID:key:z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK",
	} {
		var ferr *types.ErrFormat
		if _, err := ParseKeyDID(did); !errors.As(err, &ferr) {
			t.Errorf("%q: expected ErrFormat, got %v", did, err)
		}
	}
}

func TestKeyIdentityResolve(t *testing.T) {
	id, _ := GenerateKeyIdentity()
	doc, err := id.Resolve(context.Background())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	did := id.String()
	if doc.ID != did {
		t.Fatalf("document id %s", doc.ID)
	}
	if len(doc.VerificationMethod) != 1 {
		t.Fatalf("expected one verification method, got %d", len(doc.VerificationMethod))
	}
	vm := doc.VerificationMethod[0]
	if vm.ID != did+"#"+strings.TrimPrefix(did, "did:key:") {
		t.Fatalf("unexpected verification method id %s", vm.ID)
	}
	if vm.Type != "Ed25519VerificationKey2020" || vm.Controller != did {
		t.Fatalf("unexpected verification method %+v", vm)
	}
	for name, rel := range map[string][]string{
		"authentication":       doc.Authentication,
		"assertionMethod":      doc.AssertionMethod,
		"capabilityDelegation": doc.CapabilityDelegation,
		"capabilityInvocation": doc.CapabilityInvocation,
	} {
		if len(rel) != 1 || rel[0] != vm.ID {
			t.Errorf("%s: %v", name, rel)
		}
	}
	key, err := PublicKeyFromDocument(doc)
	if err != nil {
		t.Fatalf("public key from document: %v", err)
	}
	pub, _ := id.PublicKey(context.Background())
	if !pub.Equal(key) {
		t.Fatal("document key differs from identity key")
	}
}

func TestWebIdentityStringAndURL(t *testing.T) {
	cases := []struct {
		did    string
		domain string
		path   []string
		url    string
	}{
		{"did:web:example.com", "example.com", nil, "https://example.com/.well-known/did.json"},
		{"did:web:example.com:agents:alice", "example.com", []string{"agents", "alice"}, "https://example.com/agents/alice/did.json"},
		{"did:web:localhost%3A8443", "localhost:8443", nil, "https://localhost:8443/.well-known/did.json"},
		{"did:web:localhost%3A8443:user%20one", "localhost:8443", []string{"user one"}, "https://localhost:8443/user%20one/did.json"},
	}
	for _, tc := range cases {
		w, err := ParseWebDID(tc.did, nil)
		if err != nil {
			t.Fatalf("parse %s: %v", tc.did, err)
		}
		if w.Domain() != tc.domain {
			t.Errorf("%s: domain %q", tc.did, w.Domain())
		}
		if strings.Join(w.Path(), "/") != strings.Join(tc.path, "/") {
			t.Errorf("%s: path %v", tc.did, w.Path())
		}
		if w.String() != tc.did {
			t.Errorf("%s: String() = %s", tc.did, w.String())
		}
		if w.DocumentURL() != tc.url {
			t.Errorf("%s: DocumentURL() = %s", tc.did, w.DocumentURL())
		}
	}
}

func TestParseWebDIDErrors(t *testing.T) {
	for _, did := range []string{"", "did:web", "did:web:", "did:key:example.com", "web:example.com", "did:web:example.com::x", "did:web:%zz"} {
		var ferr *types.ErrFormat
		if _, err := ParseWebDID(did, nil); !errors.As(err, &ferr) {
			t.Errorf("%q: expected ErrFormat, got %v", did, err)
		}
	}
}

func TestGeneratedWebIdentityDocument(t *testing.T) {
	w, err := GenerateWebIdentity("example.com", []string{"agents", "alice"}, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	doc, err := w.CreateDocument([]Service{{ID: "#oaep", Type: "OAEPEndpoint", ServiceEndpoint: "https://example.com/oaep/v1"}})
	if err != nil {
		t.Fatalf("create document: %v", err)
	}
	if doc.ID != "did:web:example.com:agents:alice" {
		t.Fatalf("unexpected id %s", doc.ID)
	}
	if doc.VerificationMethod[0].ID != doc.ID+"#key-1" {
		t.Fatalf("unexpected vm id %s", doc.VerificationMethod[0].ID)
	}
	if len(doc.Service) != 1 || doc.Service[0].Type != "OAEPEndpoint" {
		t.Fatalf("unexpected services %+v", doc.Service)
	}
	cached, err := w.Resolve(context.Background())
	if err != nil || cached != doc {
		t.Fatalf("resolve must return the created document: %v", err)
	}
	if w.DocumentPath() != "/agents/alice/did.json" {
		t.Fatalf("unexpected document path %s", w.DocumentPath())
	}

	parsed, _ := ParseWebDID(w.String(), nil)
	if _, err := parsed.CreateDocument(nil); err == nil {
		t.Fatal("expected error creating a document without a key")
	}
}

func countingFetcher(doc *DIDDocument, calls *int32) FetcherFunc {
	return func(_ context.Context, url string) (*DIDDocument, error) {
		atomic.AddInt32(calls, 1)
		return doc, nil
	}
}

func TestWebIdentityResolveAndVerify(t *testing.T) {
	ctx := context.Background()
	owner, _ := GenerateWebIdentity("example.com", []string{"agents", "bob"}, nil)
	published, _ := owner.CreateDocument(nil)

	var calls int32
	var seenURL string
	fetcher := FetcherFunc(func(ctx context.Context, url string) (*DIDDocument, error) {
		seenURL = url
		return countingFetcher(published, &calls)(ctx, url)
	})

	remote, err := ParseWebDID(owner.String(), fetcher)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if remote.KeyPair() != nil {
		t.Fatal("parsed did:web must not hold key material")
	}

	sig, _ := owner.Sign([]byte("nonce"))
	ok, err := remote.Verify(ctx, []byte("nonce"), sig)
	if err != nil || !ok {
		t.Fatalf("verify: ok=%v err=%v", ok, err)
	}
	if seenURL != "https://example.com/agents/bob/did.json" {
		t.Fatalf("fetched %s", seenURL)
	}
	if ok, _ := remote.Verify(ctx, []byte("other"), sig); ok {
		t.Fatal("signature over other data accepted")
	}
	if _, err := remote.Resolve(ctx); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected one fetch, got %d", n)
	}
	var perr *types.ErrPrivateKeyUnavailable
	if _, err := remote.Sign([]byte("x")); !errors.As(err, &perr) {
		t.Fatalf("expected ErrPrivateKeyUnavailable, got %v", err)
	}
}

func TestWebIdentityResolveMismatch(t *testing.T) {
	other, _ := GenerateWebIdentity("evil.example", nil, nil)
	doc, _ := other.CreateDocument(nil)

	remote, _ := ParseWebDID("did:web:example.com", countingFetcher(doc, new(int32)))
	_, err := remote.Resolve(context.Background())
	var merr *types.ErrDocumentMismatch
	if !errors.As(err, &merr) {
		t.Fatalf("expected ErrDocumentMismatch, got %v", err)
	}
	if merr.Expected != "did:web:example.com" || merr.Got != "did:web:evil.example" {
		t.Fatalf("unexpected mismatch %+v", merr)
	}
}

func TestWebIdentityVerifySurfacesResolutionError(t *testing.T) {
	failing := FetcherFunc(func(context.Context, string) (*DIDDocument, error) {
		return nil, errors.New("connection refused")
	})
	remote, _ := ParseWebDID("did:web:example.com", failing)

	ok, err := remote.Verify(context.Background(), []byte("m"), make([]byte, 64))
	if ok {
		t.Fatal("verify must not succeed")
	}
	var rerr *types.ErrResolution
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ErrResolution, got %v", err)
	}
	if _, err := remote.PublicKey(context.Background()); !errors.As(err, &rerr) {
		t.Fatalf("expected ErrResolution from PublicKey, got %v", err)
	}

	noFetcher, _ := ParseWebDID("did:web:example.com", nil)
	if _, err := noFetcher.Resolve(context.Background()); !errors.As(err, &rerr) {
		t.Fatalf("expected ErrResolution without fetcher, got %v", err)
	}
}

func TestWebIdentityResolveRejectsUnusableDocument(t *testing.T) {
	doc := &DIDDocument{ID: "did:web:example.com", VerificationMethod: []VerificationMethod{{ID: "did:web:example.com#key-1", PublicKeyMultibase: "mAAAA"}}}
	remote, _ := ParseWebDID("did:web:example.com", countingFetcher(doc, new(int32)))
	var rerr *types.ErrResolution
	if _, err := remote.Resolve(context.Background()); !errors.As(err, &rerr) {
		t.Fatalf("expected ErrResolution, got %v", err)
	}
}

func TestHTTPFetcher(t *testing.T) {
	owner, _ := GenerateWebIdentity("placeholder", nil, nil)
	var srv *httptest.Server
	srv = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/did.json" {
			http.NotFound(w, r)
			return
		}
		host := strings.TrimPrefix(srv.URL, "https://")
		id, _ := NewWebIdentity(host, nil, owner.KeyPair(), nil)
		doc, _ := id.CreateDocument(nil)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "https://")
	fetcher := NewHTTPFetcher(FetcherOptions{HTTPClient: srv.Client()})
	resolver := NewResolver(fetcher)

	did := "did:web:" + strings.ReplaceAll(host, ":", "%3A")
	doc, err := resolver.Resolve(context.Background(), did)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if doc.ID != did {
		t.Fatalf("unexpected document id %s", doc.ID)
	}

	if _, err := fetcher.Fetch(context.Background(), srv.URL+"/missing/did.json"); err == nil {
		t.Fatal("expected error for 404")
	}

	// A client that does not trust the test certificate must fail.
	untrusting := NewHTTPFetcher(FetcherOptions{HTTPClient: &http.Client{Timeout: 2 * time.Second}})
	var rerr *types.ErrResolution
	if _, err := untrusting.Fetch(context.Background(), srv.URL+"/.well-known/did.json"); !errors.As(err, &rerr) {
		t.Fatalf("expected ErrResolution for untrusted certificate, got %v", err)
	}
}

func TestResolverIdentity(t *testing.T) {
	r := NewResolver(nil)
	key, _ := GenerateKeyIdentity()

	id, err := r.Identity(key.String())
	if err != nil || id.Method() != types.DIDMethodKey {
		t.Fatalf("did:key: %v", err)
	}
	web, err := r.Identity("did:web:example%2Ecom")
	if err != nil || web.Method() != types.DIDMethodWeb {
		t.Fatalf("did:web: %v", err)
	}
	if web.String() != "did:web:example.com" {
		t.Fatalf("expected canonical form, got %s", web.String())
	}
	var ferr *types.ErrFormat
	if _, err := r.Identity("did:peer:123"); !errors.As(err, &ferr) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestResolverCachesOnlyResolvedIdentities(t *testing.T) {
	r := NewResolver(nil)
	for i := 0; i < 10000; i++ {
		if _, err := r.Identity(fmt.Sprintf("did:web:host-%d.example", i)); err != nil {
			t.Fatalf("identity %d: %v", i, err)
		}
	}
	if n := r.web.Len(); n != 0 {
		t.Fatalf("unresolved identities were cached: %d", n)
	}

	owner, _ := GenerateWebIdentity("example.com", nil, nil)
	doc, _ := owner.CreateDocument(nil)
	var calls int32
	r = NewResolver(countingFetcher(doc, &calls))

	first, _ := r.Identity("did:web:example.com")
	if _, err := first.Resolve(context.Background()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, _ := r.Identity("did:web:example.com")
	if first != second {
		t.Fatal("resolved identity was not reused")
	}
	if _, err := second.Resolve(context.Background()); err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected one fetch, got %d", n)
	}
}

func TestResolverCacheIsBounded(t *testing.T) {
	docs := make(map[string]*DIDDocument)
	for i := 0; i < 5; i++ {
		id, _ := GenerateWebIdentity(fmt.Sprintf("host-%d.example", i), nil, nil)
		doc, _ := id.CreateDocument(nil)
		docs[id.DocumentURL()] = doc
	}
	fetcher := FetcherFunc(func(_ context.Context, url string) (*DIDDocument, error) {
		doc, ok := docs[url]
		if !ok {
			return nil, &types.ErrResolution{URL: url, Reason: "HTTP 404"}
		}
		return doc, nil
	})
	r := NewResolverWithOptions(fetcher, ResolverOptions{CacheSize: 2})
	for i := 0; i < 5; i++ {
		if _, err := r.Resolve(context.Background(), fmt.Sprintf("did:web:host-%d.example", i)); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}
	if _, err := r.Resolve(context.Background(), "did:web:unknown.example"); err == nil {
		t.Fatal("expected resolution error")
	}
	if n := r.web.Len(); n != 2 {
		t.Fatalf("expected cache capped at 2, got %d", n)
	}
}
