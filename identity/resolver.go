// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/oap-foundation/oaep-go/types"
)

// DocumentFetcher retrieves a DID document published at an HTTPS URL. It
// returns the parsed document or a *types.ErrResolution; it does not retry.
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) (*DIDDocument, error)
}

// FetcherFunc adapts a function to the DocumentFetcher interface.
type FetcherFunc func(ctx context.Context, url string) (*DIDDocument, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (*DIDDocument, error) {
	return f(ctx, url)
}

// FetcherOptions configures an HTTPFetcher.
type FetcherOptions struct {
	// HTTPClient is used for did:web resolution. Defaults to a client with a
	// 10s timeout and the default (certificate-validating) transport.
	HTTPClient *http.Client
	// MaxResponseBytes caps the size of a fetched DID Document (default 1 MiB).
	MaxResponseBytes int64
}

// HTTPFetcher fetches did:web documents over HTTPS.
type HTTPFetcher struct {
	httpClient       *http.Client
	maxResponseBytes int64
}

// NewHTTPFetcher constructs an HTTPFetcher with the provided options.
func NewHTTPFetcher(opts FetcherOptions) *HTTPFetcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	maxBytes := opts.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20 // 1 MiB
	}
	return &HTTPFetcher{
		httpClient:       client,
		maxResponseBytes: maxBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*DIDDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &types.ErrResolution{URL: url, Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &types.ErrResolution{URL: url, Reason: fmt.Sprintf("HTTP fetch: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &types.ErrResolution{URL: url, Reason: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxResponseBytes))
	if err != nil {
		return nil, &types.ErrResolution{URL: url, Reason: fmt.Sprintf("read body: %v", err)}
	}

	var doc DIDDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &types.ErrResolution{URL: url, Reason: fmt.Sprintf("parse JSON: %v", err)}
	}
	return &doc, nil
}

// Defaults for the resolved did:web cache.
const (
	DefaultWebCacheSize = 1024
	DefaultWebCacheTTL  = time.Hour
)

// ResolverOptions bounds the resolved did:web cache.
type ResolverOptions struct {
	// CacheSize caps the number of resolved did:web identities kept.
	CacheSize int
	// CacheTTL is how long a resolved document is reused before it is
	// fetched again.
	CacheTTL time.Duration
}

// Resolver turns DID strings into Identity values. did:key identities are
// self-certifying; did:web identities are resolved through the fetcher.
// Only identities whose document resolved are cached, so parsing an
// arbitrary DID never grows the cache.
type Resolver struct {
	fetcher DocumentFetcher
	web     *expirable.LRU[string, *WebIdentity]
}

// NewResolver constructs a Resolver with the default cache bounds. A nil
// fetcher disables did:web resolution; did:web identities can still be
// parsed but not verified.
func NewResolver(fetcher DocumentFetcher) *Resolver {
	return NewResolverWithOptions(fetcher, ResolverOptions{})
}

// NewResolverWithOptions constructs a Resolver with explicit cache bounds.
func NewResolverWithOptions(fetcher DocumentFetcher, opts ResolverOptions) *Resolver {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultWebCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultWebCacheTTL
	}
	return &Resolver{
		fetcher: fetcher,
		web:     expirable.NewLRU[string, *WebIdentity](opts.CacheSize, nil, opts.CacheTTL),
	}
}

// Identity parses did into a public-key-only Identity without network I/O.
// A did:web that was resolved before is served from the cache; otherwise a
// fresh identity is returned and cached once its Resolve succeeds.
func (r *Resolver) Identity(did string) (Identity, error) {
	method, err := ParseDIDMethod(did)
	if err != nil {
		return nil, err
	}
	switch method {
	case types.DIDMethodKey:
		return ParseKeyDID(did)
	case types.DIDMethodWeb:
		w, err := ParseWebDID(did, r.fetcher)
		if err != nil {
			return nil, err
		}
		if cached, ok := r.web.Get(w.String()); ok {
			return cached, nil
		}
		w.onResolved = r.remember
		return w, nil
	default:
		return nil, &types.ErrFormat{Input: did, Reason: "unsupported DID method " + string(method)}
	}
}

func (r *Resolver) remember(w *WebIdentity) {
	r.web.Add(w.String(), w)
}

// Resolve returns the DID document for did.
func (r *Resolver) Resolve(ctx context.Context, did string) (*DIDDocument, error) {
	id, err := r.Identity(did)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	doc, err := id.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	return doc, nil
}
