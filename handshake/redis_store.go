// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package handshake

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/oap-foundation/oaep-go/profile"
	"github.com/oap-foundation/oaep-go/types"
)

// DefaultRedisKeyPrefix namespaces session hashes in Redis.
const DefaultRedisKeyPrefix = "oaep:session:"

const (
	fieldRemoteDID   = "remote_did"
	fieldProfile     = "profile"
	fieldChallenge   = "challenge"
	fieldCreatedAt   = "created_at"
	fieldState       = "state"
	fieldConnectedAt = "connected_at"
)

// createScript inserts the hash only if the key is free and sets its TTL.
// ARGV[1] is the TTL in seconds, the rest are field/value pairs.
var createScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV, 2))
redis.call("EXPIRE", KEYS[1], ARGV[1])
return 1
`)

// transitionScript compares the state field to ARGV[1] and, on a match,
// sets it to ARGV[2] and records ARGV[3] as connected_at when non-empty.
// It returns {0, ""} for a missing key, {1, current} on a mismatch and
// {2, ""} on success.
var transitionScript = redis.NewScript(`
local state = redis.call("HGET", KEYS[1], "state")
if not state then
	return {0, ""}
end
if state ~= ARGV[1] then
	return {1, state}
end
redis.call("HSET", KEYS[1], "state", ARGV[2])
if ARGV[3] ~= "" then
	redis.call("HSET", KEYS[1], "connected_at", ARGV[3])
end
return {2, ""}
`)

// RedisStore keeps sessions as Redis hashes so several engine replicas
// serving one identity share a session table. Each hash expires after the
// configured TTL even if nobody sweeps it.
type RedisStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

var _ SessionStore = (*RedisStore)(nil)

// NewRedisStore wraps client. ttl bounds how long a session hash lives and
// defaults to DefaultSessionMaxAge.
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultSessionMaxAge
	}
	return &RedisStore{client: client, prefix: DefaultRedisKeyPrefix, ttl: ttl}
}

func (r *RedisStore) key(id string) string { return r.prefix + id }

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("handshake: redis store: session id is required")
	}
	fields, err := encodeSession(s)
	if err != nil {
		return err
	}
	args := append([]interface{}{int64(r.ttl / time.Second)}, fields...)
	created, err := createScript.Run(ctx, r.client, []string{r.key(s.ID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("handshake: redis store: create %s: %w", s.ID, err)
	}
	if created == 0 {
		return fmt.Errorf("handshake: redis store: session %s already exists", s.ID)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	fields, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("handshake: redis store: get %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, &types.ErrSessionNotFound{SessionID: id}
	}
	return decodeSession(id, fields)
}

func (r *RedisStore) Transition(ctx context.Context, id string, from, to types.SessionState, at time.Time) error {
	connectedAt := ""
	if to == types.SessionConnected {
		connectedAt = strconv.FormatInt(at.Unix(), 10)
	}
	res, err := transitionScript.Run(ctx, r.client, []string{r.key(id)}, string(from), string(to), connectedAt).Slice()
	if err != nil {
		return fmt.Errorf("handshake: redis store: transition %s: %w", id, err)
	}
	if len(res) != 2 {
		return fmt.Errorf("handshake: redis store: transition %s: unexpected reply %v", id, res)
	}
	code, _ := res[0].(int64)
	switch code {
	case 0:
		return &types.ErrSessionNotFound{SessionID: id}
	case 1:
		current, _ := res[1].(string)
		return &types.ErrInvalidState{SessionID: id, State: types.SessionState(current)}
	case 2:
		return nil
	default:
		return fmt.Errorf("handshake: redis store: transition %s: unexpected reply %v", id, res)
	}
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("handshake: redis store: delete %s: %w", id, err)
	}
	return nil
}

func (r *RedisStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("handshake: redis store: sweep: %w", err)
		}
		for _, key := range keys {
			raw, err := r.client.HGet(ctx, key, fieldCreatedAt).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return removed, fmt.Errorf("handshake: redis store: sweep %s: %w", key, err)
			}
			created, err := strconv.ParseInt(raw, 10, 64)
			if err == nil && !time.Unix(created, 0).Before(cutoff) {
				continue
			}
			n, err := r.client.Del(ctx, key).Result()
			if err != nil {
				return removed, fmt.Errorf("handshake: redis store: sweep %s: %w", key, err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// encodeSession flattens s into HSET field/value pairs.
func encodeSession(s *Session) ([]interface{}, error) {
	prof := ""
	if s.RemoteProfile != nil {
		data, err := s.RemoteProfile.JSON()
		if err != nil {
			return nil, fmt.Errorf("handshake: encode session %s: %w", s.ID, err)
		}
		prof = string(data)
	}
	connectedAt := "0"
	if !s.ConnectedAt.IsZero() {
		connectedAt = strconv.FormatInt(s.ConnectedAt.Unix(), 10)
	}
	return []interface{}{
		fieldRemoteDID, s.RemoteDID,
		fieldProfile, prof,
		fieldChallenge, s.Challenge,
		fieldCreatedAt, strconv.FormatInt(s.CreatedAt.Unix(), 10),
		fieldState, string(s.State),
		fieldConnectedAt, connectedAt,
	}, nil
}

// decodeSession rebuilds a session from an HGETALL reply.
func decodeSession(id string, fields map[string]string) (*Session, error) {
	state := types.SessionState(fields[fieldState])
	if !state.Valid() {
		return nil, fmt.Errorf("handshake: decode session %s: unknown state %q", id, state)
	}
	created, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("handshake: decode session %s: created_at: %w", id, err)
	}
	s := &Session{
		ID:        id,
		RemoteDID: fields[fieldRemoteDID],
		Challenge: fields[fieldChallenge],
		CreatedAt: time.Unix(created, 0).UTC(),
		State:     state,
	}
	if raw := fields[fieldConnectedAt]; raw != "" && raw != "0" {
		connected, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("handshake: decode session %s: connected_at: %w", id, err)
		}
		s.ConnectedAt = time.Unix(connected, 0).UTC()
	}
	if raw := fields[fieldProfile]; raw != "" {
		prof, err := profile.Parse([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("handshake: decode session %s: %w", id, err)
		}
		s.RemoteProfile = prof
	}
	return s, nil
}
