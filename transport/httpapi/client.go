// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oap-foundation/oaep-go/handshake"
	"github.com/oap-foundation/oaep-go/profile"
	"github.com/oap-foundation/oaep-go/types"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
	// Logger defaults to logrus.StandardLogger().
	Logger logrus.FieldLogger
	// ProfileVerifier, when set, checks the responder's profile before the
	// challenge is answered.
	ProfileVerifier handshake.ProfileVerifier
}

// Client runs the initiator side of the handshake against a Server.
type Client struct {
	engine   *handshake.Engine
	http     *http.Client
	log      logrus.FieldLogger
	verifier handshake.ProfileVerifier
}

// ConnectResult describes an established session.
type ConnectResult struct {
	SessionID     string
	RemoteDID     string
	RemoteProfile *profile.AgentProfile
}

// NewClient builds a Client that signs challenges with engine's identity.
func NewClient(engine *handshake.Engine, opts ClientOptions) *Client {
	c := &Client{engine: engine, http: opts.HTTPClient, log: opts.Logger, verifier: opts.ProfileVerifier}
	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	return c
}

// Connect performs the full handshake with the agent remoteDID served at
// baseURL. It fails if the peer rejects the signature.
func (c *Client) Connect(ctx context.Context, baseURL, remoteDID string) (*ConnectResult, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	log := c.log.WithField("remote_did", remoteDID)

	req := c.engine.CreateConnectionRequest(remoteDID)
	var ch handshake.ConnectionChallenge
	if err := c.post(ctx, baseURL+ConnectPath, req, &ch); err != nil {
		return nil, fmt.Errorf("httpapi: connect: %w", err)
	}
	if err := ch.Validate(); err != nil {
		return nil, fmt.Errorf("httpapi: connect: %w", err)
	}
	if ch.From != remoteDID {
		return nil, fmt.Errorf("httpapi: connect: %w", &types.ErrInvalidMessage{
			Type:   types.MessageConnectionChallenge,
			Reason: fmt.Sprintf("challenge from %s, expected %s", ch.From, remoteDID),
		})
	}
	if c.verifier != nil {
		res, err := c.verifier.Verify(ctx, ch.AgentProfile, remoteDID)
		if err != nil {
			return nil, fmt.Errorf("httpapi: connect: verify responder profile: %w", err)
		}
		if !res.Valid {
			return nil, fmt.Errorf("httpapi: connect: %w", &types.ErrInvalidMessage{
				Type:   types.MessageConnectionChallenge,
				Reason: "agentProfile rejected: " + res.Reason,
			})
		}
	}

	resp, err := c.engine.CreateChallengeResponse(&ch)
	if err != nil {
		return nil, fmt.Errorf("httpapi: connect: %w", err)
	}
	var result respondResult
	if err := c.post(ctx, baseURL+RespondPath, resp, &result); err != nil {
		return nil, fmt.Errorf("httpapi: respond: %w", err)
	}
	if !result.Connected {
		return nil, fmt.Errorf("httpapi: respond: peer did not accept the challenge response")
	}

	log.WithField("session_id", ch.SessionID).Info("connected")
	return &ConnectResult{SessionID: ch.SessionID, RemoteDID: ch.From, RemoteProfile: ch.AgentProfile}, nil
}

// Disconnect asks the peer at baseURL to drop sessionID.
func (c *Client) Disconnect(ctx context.Context, baseURL, sessionID string) error {
	url := strings.TrimRight(baseURL, "/") + SessionsPath + "/" + sessionID
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("httpapi: disconnect: %w", err)
	}
	httpResp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("httpapi: disconnect: %w", err)
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("httpapi: disconnect: %w", decodeAPIError(httpResp))
	}
	return nil
}

func (c *Client) post(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	// A rejected signature is reported as 401 with a normal result body.
	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusUnauthorized {
		return decodeAPIError(httpResp)
	}
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
