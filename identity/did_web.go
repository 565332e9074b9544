// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package identity

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/oap-foundation/oaep-go/keys"
	"github.com/oap-foundation/oaep-go/types"
)

const webDIDPrefix = "did:web:"

// WebIdentity is a did:web identity anchored to a DNS domain and optional
// path. A parsed WebIdentity has no key material until Resolve succeeds.
type WebIdentity struct {
	domain  string
	path    []string
	fetcher DocumentFetcher

	mu   sync.Mutex
	pair *keys.KeyPair
	doc  *DIDDocument

	// onResolved is set by a Resolver to cache this identity once a
	// fetched document has been accepted.
	onResolved func(*WebIdentity)
}

var _ Identity = (*WebIdentity)(nil)

// GenerateWebIdentity creates a did:web identity for domain and path with a
// fresh key pair. fetcher may be nil when the identity is only used locally.
func GenerateWebIdentity(domain string, path []string, fetcher DocumentFetcher) (*WebIdentity, error) {
	kp, err := keys.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return NewWebIdentity(domain, path, kp, fetcher)
}

// NewWebIdentity builds a did:web identity around an existing key pair.
func NewWebIdentity(domain string, path []string, kp *keys.KeyPair, fetcher DocumentFetcher) (*WebIdentity, error) {
	if domain == "" {
		return nil, &types.ErrValidation{Field: "domain", Reason: "must not be empty"}
	}
	for i, seg := range path {
		if seg == "" {
			return nil, &types.ErrValidation{Field: "path", Reason: fmt.Sprintf("segment %d is empty", i)}
		}
	}
	return &WebIdentity{
		domain:  domain,
		path:    append([]string(nil), path...),
		fetcher: fetcher,
		pair:    kp,
	}, nil
}

// ParseWebDID parses "did:web:<domain>[:<segment>...]", percent-decoding each
// part. The returned identity must be resolved through fetcher before it can
// verify anything.
func ParseWebDID(did string, fetcher DocumentFetcher) (*WebIdentity, error) {
	if !strings.HasPrefix(did, webDIDPrefix) {
		return nil, &types.ErrFormat{Input: did, Reason: "not a did:web DID"}
	}
	parts := strings.Split(strings.TrimPrefix(did, webDIDPrefix), ":")
	decoded := make([]string, len(parts))
	for i, p := range parts {
		v, err := url.PathUnescape(p)
		if err != nil {
			return nil, &types.ErrFormat{Input: did, Reason: fmt.Sprintf("percent-decode %q: %v", p, err)}
		}
		if v == "" {
			return nil, &types.ErrFormat{Input: did, Reason: "empty domain or path segment"}
		}
		decoded[i] = v
	}
	return &WebIdentity{domain: decoded[0], path: decoded[1:], fetcher: fetcher}, nil
}

func (w *WebIdentity) Method() types.DIDMethod { return types.DIDMethodWeb }

// Domain returns the decoded domain, which may include a port.
func (w *WebIdentity) Domain() string { return w.domain }

// Path returns a copy of the decoded path segments.
func (w *WebIdentity) Path() []string { return append([]string(nil), w.path...) }

func (w *WebIdentity) String() string {
	var b strings.Builder
	b.WriteString(webDIDPrefix)
	b.WriteString(escapeDIDPart(w.domain))
	for _, seg := range w.path {
		b.WriteByte(':')
		b.WriteString(escapeDIDPart(seg))
	}
	return b.String()
}

// DocumentURL returns where the DID document is published:
// https://<domain>/<path>/did.json, or https://<domain>/.well-known/did.json
// when there is no path.
func (w *WebIdentity) DocumentURL() string {
	if len(w.path) == 0 {
		return "https://" + w.domain + "/.well-known/did.json"
	}
	segs := make([]string, len(w.path))
	for i, seg := range w.path {
		segs[i] = url.PathEscape(seg)
	}
	return "https://" + w.domain + "/" + strings.Join(segs, "/") + "/did.json"
}

// DocumentPath is the HTTP path component of DocumentURL.
func (w *WebIdentity) DocumentPath() string {
	u := w.DocumentURL()
	return u[len("https://")+len(w.domain):]
}

func (w *WebIdentity) HasPrivateKey() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pair.HasPrivateKey()
}

// KeyPair returns the held key pair, or nil before resolution.
func (w *WebIdentity) KeyPair() *keys.KeyPair {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pair
}

func (w *WebIdentity) Sign(data []byte) ([]byte, error) {
	w.mu.Lock()
	kp := w.pair
	w.mu.Unlock()
	if !kp.HasPrivateKey() {
		return nil, &types.ErrPrivateKeyUnavailable{DID: w.String()}
	}
	return kp.Sign(data)
}

// PublicKey returns the held key, resolving the document first when no key
// is held yet. Resolution errors are returned unchanged.
func (w *WebIdentity) PublicKey(ctx context.Context) (ed25519.PublicKey, error) {
	w.mu.Lock()
	kp := w.pair
	w.mu.Unlock()
	if kp != nil {
		return kp.PublicKey, nil
	}
	if _, err := w.Resolve(ctx); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pair.PublicKey, nil
}

func (w *WebIdentity) Verify(ctx context.Context, data, signature []byte) (bool, error) {
	publicKey, err := w.PublicKey(ctx)
	if err != nil {
		return false, err
	}
	return keys.Verify(publicKey, data, signature), nil
}

// Resolve returns the cached document or fetches it from DocumentURL. The
// fetched document must declare exactly this DID and carry a decodable
// Ed25519 key in its first verification method.
func (w *WebIdentity) Resolve(ctx context.Context) (*DIDDocument, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.doc != nil {
		return w.doc, nil
	}

	did := w.String()
	if w.fetcher == nil {
		return nil, &types.ErrResolution{DID: did, Reason: "no document fetcher configured"}
	}

	doc, err := w.fetcher.Fetch(ctx, w.DocumentURL())
	if err != nil {
		var rerr *types.ErrResolution
		if errors.As(err, &rerr) {
			return nil, &types.ErrResolution{DID: did, URL: rerr.URL, Reason: rerr.Reason}
		}
		return nil, &types.ErrResolution{DID: did, Reason: err.Error()}
	}
	if doc == nil {
		return nil, &types.ErrResolution{DID: did, Reason: "fetcher returned no document"}
	}
	if doc.ID != did {
		return nil, &types.ErrDocumentMismatch{Expected: did, Got: doc.ID}
	}

	publicKey, err := PublicKeyFromDocument(doc)
	if err != nil {
		return nil, &types.ErrResolution{DID: did, Reason: err.Error()}
	}
	if w.pair == nil {
		w.pair = &keys.KeyPair{PublicKey: publicKey}
	} else if !bytes.Equal(w.pair.PublicKey, publicKey) {
		return nil, &types.ErrResolution{DID: did, Reason: "published key does not match the held key"}
	}

	w.doc = doc
	if w.onResolved != nil {
		w.onResolved(w)
	}
	return doc, nil
}

// CreateDocument builds the document this identity's host must publish at
// DocumentURL, caches it and returns it.
func (w *WebIdentity) CreateDocument(services []Service) (*DIDDocument, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pair == nil {
		return nil, &types.ErrValidation{Field: "publicKey", Reason: "no key held for " + w.String()}
	}
	did := w.String()
	w.doc = buildDocument(did, did+"#key-1", w.pair.PublicKey, services)
	return w.doc, nil
}

// escapeDIDPart percent-encodes a domain or path segment for use between
// colons of a did:web identifier.
func escapeDIDPart(s string) string {
	return strings.ReplaceAll(url.PathEscape(s), ":", "%3A")
}
