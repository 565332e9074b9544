// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package handshake implements the OAEP connection handshake, a four-message
// challenge-response exchange that proves a remote agent controls the key
// behind its DID:
//
//	1. initiator  -> responder  ConnectionRequest   (initiator's AgentProfile)
//	2. responder  -> initiator  ConnectionChallenge (session id, nonce, responder's AgentProfile)
//	3. initiator  -> responder  ConnectionResponse  (signature over the nonce)
//	4. responder verifies the signature and marks the session CONNECTED
//
// An Engine plays both roles for one local identity.
package handshake

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oap-foundation/oaep-go/identity"
	"github.com/oap-foundation/oaep-go/profile"
	"github.com/oap-foundation/oaep-go/types"
)

const (
	// ChallengeLifetime bounds how long after session creation a challenge
	// response is accepted.
	ChallengeLifetime = 5 * time.Minute
	// DefaultSessionMaxAge is the sweep age used when CleanupExpiredSessions
	// is called with a non-positive maxAge.
	DefaultSessionMaxAge = time.Hour

	nonceSize     = 32
	sessionIDSize = 16
)

// ProfileVerifier checks a remote agent's profile during step 2.
// *profile.Verifier implements it.
type ProfileVerifier interface {
	Verify(ctx context.Context, p *profile.AgentProfile, expectedSubject string) (*profile.VerificationResult, error)
}

// Options configures an Engine. Zero values select defaults.
type Options struct {
	// Resolver turns remote DIDs into verifiers. Defaults to a resolver
	// backed by an identity.HTTPFetcher.
	Resolver *identity.Resolver
	// Store holds sessions. Defaults to a new MemoryStore.
	Store SessionStore
	// Logger defaults to logrus.StandardLogger().
	Logger logrus.FieldLogger
	// Metrics is optional.
	Metrics *Metrics
	// Clock defaults to time.Now.
	Clock func() time.Time
	// ProfileVerifier, when set, makes step 2 reject requests whose profile
	// does not verify against its issuer or does not describe the sender.
	// When nil, profile authenticity is left to the caller.
	ProfileVerifier ProfileVerifier
}

// Engine drives handshakes for one local identity. It is safe for
// concurrent use.
type Engine struct {
	local    identity.Identity
	profile  *profile.AgentProfile
	resolver *identity.Resolver
	store    SessionStore
	log      logrus.FieldLogger
	metrics  *Metrics
	now      func() time.Time
	verifier ProfileVerifier
}

// NewEngine constructs an Engine for local, advertising prof. prof must be
// signed and describe local.
func NewEngine(local identity.Identity, prof *profile.AgentProfile, opts Options) (*Engine, error) {
	if local == nil {
		return nil, &types.ErrValidation{Field: "local", Reason: "identity is required"}
	}
	if prof == nil || !prof.IsSigned() {
		return nil, &types.ErrValidation{Field: "profile", Reason: "a signed agent profile is required"}
	}
	if prof.SubjectDID() != local.String() {
		return nil, &types.ErrValidation{
			Field:  "profile",
			Reason: fmt.Sprintf("profile subject %s does not match %s", prof.SubjectDID(), local.String()),
		}
	}

	e := &Engine{
		local:    local,
		profile:  prof,
		resolver: opts.Resolver,
		store:    opts.Store,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Clock,
		verifier: opts.ProfileVerifier,
	}
	if e.resolver == nil {
		e.resolver = identity.NewResolver(identity.NewHTTPFetcher(identity.FetcherOptions{}))
	}
	if e.store == nil {
		e.store = NewMemoryStore()
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.log = e.log.WithField("local_did", local.String())
	return e, nil
}

// Local returns the engine's identity.
func (e *Engine) Local() identity.Identity { return e.local }

// Profile returns the profile the engine advertises.
func (e *Engine) Profile() *profile.AgentProfile { return e.profile }

func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Second)
}

// CreateConnectionRequest builds the step 1 message addressed to to.
func (e *Engine) CreateConnectionRequest(to string) *ConnectionRequest {
	return &ConnectionRequest{
		Type:         types.MessageConnectionRequest,
		Version:      ProtocolVersion,
		From:         e.local.String(),
		To:           to,
		Timestamp:    e.clock().Unix(),
		AgentProfile: e.profile,
	}
}

// ProcessConnectionRequest handles step 1 and returns the step 2 challenge.
// It opens a session in state CHALLENGE_SENT.
func (e *Engine) ProcessConnectionRequest(ctx context.Context, req *ConnectionRequest) (*ConnectionChallenge, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.To != e.local.String() {
		return nil, &types.ErrInvalidMessage{
			Type:   types.MessageConnectionRequest,
			Reason: fmt.Sprintf("addressed to %s, not %s", req.To, e.local.String()),
		}
	}
	remote, err := e.resolver.Identity(req.From)
	if err != nil {
		return nil, &types.ErrInvalidMessage{Type: types.MessageConnectionRequest, Reason: "from: " + err.Error()}
	}
	if remote.String() != req.From {
		return nil, &types.ErrInvalidMessage{
			Type:   types.MessageConnectionRequest,
			Reason: fmt.Sprintf("from %s is not in canonical form %s", req.From, remote.String()),
		}
	}

	log := e.log.WithField("remote_did", req.From)
	if e.verifier != nil {
		res, err := e.verifier.Verify(ctx, req.AgentProfile, req.From)
		if err != nil {
			return nil, fmt.Errorf("handshake: verify agent profile: %w", err)
		}
		if !res.Valid {
			log.WithField("reason", res.Reason).Warn("rejected connection request")
			return nil, &types.ErrInvalidMessage{
				Type:   types.MessageConnectionRequest,
				Reason: "agentProfile rejected: " + res.Reason,
			}
		}
	}

	nonce, err := randomHex(nonceSize)
	if err != nil {
		return nil, err
	}
	sessionID, err := randomHex(sessionIDSize)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	s := &Session{
		ID:            sessionID,
		RemoteDID:     req.From,
		RemoteProfile: req.AgentProfile,
		Challenge:     nonce,
		CreatedAt:     now,
		State:         types.SessionChallengeSent,
	}
	if err := e.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("handshake: create session: %w", err)
	}
	e.metrics.challengeIssued()
	log.WithField("session_id", sessionID).Info("challenge issued")

	return &ConnectionChallenge{
		Type:         types.MessageConnectionChallenge,
		Version:      ProtocolVersion,
		SessionID:    sessionID,
		From:         e.local.String(),
		To:           req.From,
		Timestamp:    now.Unix(),
		Challenge:    nonce,
		AgentProfile: e.profile,
	}, nil
}

// CreateChallengeResponse handles step 2 on the initiator side by signing the
// challenge string with the local key.
func (e *Engine) CreateChallengeResponse(ch *ConnectionChallenge) (*ConnectionResponse, error) {
	if err := ch.Validate(); err != nil {
		return nil, err
	}
	if ch.To != e.local.String() {
		return nil, &types.ErrInvalidMessage{
			Type:   types.MessageConnectionChallenge,
			Reason: fmt.Sprintf("addressed to %s, not %s", ch.To, e.local.String()),
		}
	}

	sig, err := e.local.Sign([]byte(ch.Challenge))
	if err != nil {
		return nil, fmt.Errorf("handshake: sign challenge: %w", err)
	}
	return &ConnectionResponse{
		Type:              types.MessageConnectionResponse,
		Version:           ProtocolVersion,
		SessionID:         ch.SessionID,
		From:              e.local.String(),
		To:                ch.From,
		Timestamp:         e.clock().Unix(),
		ChallengeResponse: base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// VerifyConnectionResponse handles step 4. It returns true and marks the
// session CONNECTED when the signature over the session's challenge verifies
// against the remote DID. A bad signature returns false and leaves the
// session untouched; bookkeeping failures are typed errors.
func (e *Engine) VerifyConnectionResponse(ctx context.Context, resp *ConnectionResponse) (bool, error) {
	if err := resp.Validate(); err != nil {
		return false, err
	}
	log := e.log.WithField("session_id", resp.SessionID)

	s, err := e.store.Get(ctx, resp.SessionID)
	if err != nil {
		e.recordFailure(err)
		return false, err
	}
	log = log.WithField("remote_did", s.RemoteDID)

	if s.State != types.SessionChallengeSent {
		e.metrics.verification(resultInvalidState)
		return false, &types.ErrInvalidState{SessionID: s.ID, State: s.State}
	}
	now := e.clock()
	if now.Sub(s.CreatedAt) > ChallengeLifetime {
		if err := e.store.Delete(ctx, s.ID); err != nil {
			log.WithError(err).Error("delete expired session")
		}
		e.metrics.verification(resultExpired)
		log.Info("challenge expired")
		return false, &types.ErrSessionExpired{SessionID: s.ID}
	}
	if resp.From != s.RemoteDID {
		return false, &types.ErrInvalidMessage{
			Type:   types.MessageConnectionResponse,
			Reason: fmt.Sprintf("from %s does not match session peer %s", resp.From, s.RemoteDID),
		}
	}
	if resp.To != e.local.String() {
		return false, &types.ErrInvalidMessage{
			Type:   types.MessageConnectionResponse,
			Reason: fmt.Sprintf("addressed to %s, not %s", resp.To, e.local.String()),
		}
	}

	sig, err := base64.StdEncoding.DecodeString(resp.ChallengeResponse)
	if err != nil {
		e.metrics.verification(resultRejected)
		return false, nil
	}
	remote, err := e.resolver.Identity(s.RemoteDID)
	if err != nil {
		e.metrics.verification(resultError)
		return false, fmt.Errorf("handshake: remote identity: %w", err)
	}
	ok, err := remote.Verify(ctx, []byte(s.Challenge), sig)
	if err != nil {
		e.metrics.verification(resultError)
		return false, fmt.Errorf("handshake: verify challenge response: %w", err)
	}
	if !ok {
		e.metrics.verification(resultRejected)
		log.Warn("challenge response signature rejected")
		return false, nil
	}

	if err := e.store.Transition(ctx, s.ID, types.SessionChallengeSent, types.SessionConnected, now); err != nil {
		e.recordFailure(err)
		return false, err
	}
	e.metrics.verification(resultConnected)
	log.Info("session connected")
	return true, nil
}

func (e *Engine) recordFailure(err error) {
	var (
		notFound *types.ErrSessionNotFound
		badState *types.ErrInvalidState
	)
	switch {
	case errors.As(err, &notFound):
		e.metrics.verification(resultNotFound)
	case errors.As(err, &badState):
		e.metrics.verification(resultInvalidState)
	default:
		e.metrics.verification(resultError)
	}
}

// GetSession returns a snapshot of the session, or false when it does not
// exist, was terminated or was swept.
func (e *Engine) GetSession(ctx context.Context, id string) (*Session, bool, error) {
	s, err := e.store.Get(ctx, id)
	if err != nil {
		var notFound *types.ErrSessionNotFound
		if errors.As(err, &notFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return s, true, nil
}

// TerminateSession removes the session regardless of its state.
func (e *Engine) TerminateSession(ctx context.Context, id string) error {
	if err := e.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("handshake: terminate session: %w", err)
	}
	e.log.WithField("session_id", id).Info("session terminated")
	return nil
}

// CleanupExpiredSessions removes every session older than maxAge, whatever
// its state, and returns how many were removed. A non-positive maxAge
// selects DefaultSessionMaxAge.
func (e *Engine) CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}
	n, err := e.store.Sweep(ctx, e.clock().Add(-maxAge))
	e.metrics.swept(n)
	if err != nil {
		return n, fmt.Errorf("handshake: cleanup sessions: %w", err)
	}
	if n > 0 {
		e.log.WithField("removed", n).Debug("expired sessions swept")
	}
	return n, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("handshake: read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
