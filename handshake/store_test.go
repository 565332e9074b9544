// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package handshake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/oap-foundation/oaep-go/identity"
	"github.com/oap-foundation/oaep-go/types"
)

func testSession(t *testing.T, id string, created time.Time) *Session {
	t.Helper()
	remote, _ := identity.GenerateKeyIdentity()
	return &Session{
		ID:            id,
		RemoteDID:     remote.String(),
		RemoteProfile: signedProfile(t, remote, "remote"),
		Challenge:     "00ff",
		CreatedAt:     created,
		State:         types.SessionChallengeSent,
	}
}

// exerciseStore runs the SessionStore contract against store.
func exerciseStore(t *testing.T, store SessionStore) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s := testSession(t, "a1", base)
	if err := store.Create(ctx, s); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, s); err == nil {
		t.Fatal("duplicate create must fail")
	}

	got, err := store.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RemoteDID != s.RemoteDID || got.Challenge != s.Challenge || !got.CreatedAt.Equal(base) {
		t.Fatalf("unexpected session %+v", got)
	}
	if got.RemoteProfile == nil || got.RemoteProfile.ID != s.RemoteProfile.ID {
		t.Fatal("remote profile lost")
	}

	var nerr *types.ErrSessionNotFound
	if _, err := store.Get(ctx, "missing"); !errors.As(err, &nerr) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := store.Transition(ctx, "missing", types.SessionChallengeSent, types.SessionConnected, base); !errors.As(err, &nerr) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	connected := base.Add(time.Minute)
	if err := store.Transition(ctx, "a1", types.SessionChallengeSent, types.SessionConnected, connected); err != nil {
		t.Fatalf("transition: %v", err)
	}
	var serr *types.ErrInvalidState
	if err := store.Transition(ctx, "a1", types.SessionChallengeSent, types.SessionConnected, connected); !errors.As(err, &serr) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if serr.State != types.SessionConnected {
		t.Fatalf("unexpected state in error: %s", serr.State)
	}
	got, _ = store.Get(ctx, "a1")
	if got.State != types.SessionConnected || !got.ConnectedAt.Equal(connected) {
		t.Fatalf("unexpected session after transition %+v", got)
	}

	for i := 0; i < 3; i++ {
		if err := store.Create(ctx, testSession(t, fmt.Sprintf("b%d", i), base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	// a1 and b0 were created at base, b1 one hour later.
	n, err := store.Sweep(ctx, base.Add(90*time.Minute))
	if err != nil || n != 3 {
		t.Fatalf("sweep: n=%d err=%v", n, err)
	}
	if _, err := store.Get(ctx, "b2"); err != nil {
		t.Fatalf("b2 must survive the sweep: %v", err)
	}

	if err := store.Delete(ctx, "b2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "b2"); err != nil {
		t.Fatalf("delete twice: %v", err)
	}
	if _, err := store.Get(ctx, "b2"); !errors.As(err, &nerr) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseStore(t, store)
	if n := store.Len(); n != 0 {
		t.Fatalf("expected empty store, got %d", n)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.Create(ctx, testSession(t, "c1", time.Now()))

	s, _ := store.Get(ctx, "c1")
	s.State = types.SessionConnected
	again, _ := store.Get(ctx, "c1")
	if again.State != types.SessionChallengeSent {
		t.Fatal("mutating a snapshot changed the stored session")
	}
}

// newTestRedis connects to OAEP_TEST_REDIS_ADDR when set and to an
// in-process miniredis otherwise.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("OAEP_TEST_REDIS_ADDR")
	if addr == "" {
		addr = miniredis.RunT(t).Addr()
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis %s not reachable: %v", addr, err)
	}
	return client
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)

	store := NewRedisStore(client, time.Hour)
	store.prefix = fmt.Sprintf("oaep:test:%d:", time.Now().UnixNano())
	exerciseStore(t, store)

	_ = store.Create(ctx, testSession(t, "ttl", time.Now()))
	ttl, err := client.TTL(ctx, store.key("ttl")).Result()
	if err != nil || ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected TTL %v err=%v", ttl, err)
	}
	_ = store.Delete(ctx, "ttl")
}

func TestRedisStoreConcurrentTransition(t *testing.T) {
	ctx := context.Background()
	store := NewRedisStore(newTestRedis(t), time.Hour)
	store.prefix = fmt.Sprintf("oaep:race:%d:", time.Now().UnixNano())
	if err := store.Create(ctx, testSession(t, "r1", time.Now())); err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 16
	var (
		wg   sync.WaitGroup
		wins int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Transition(ctx, "r1", types.SessionChallengeSent, types.SessionConnected, time.Now())
			if err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one transition, got %d", wins)
	}
}

func TestRedisSessionCodec(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := testSession(t, "d1", created)
	s.State = types.SessionConnected
	s.ConnectedAt = created.Add(10 * time.Second)

	pairs, err := encodeSession(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(pairs)%2 != 0 {
		t.Fatalf("odd number of hash arguments: %d", len(pairs))
	}
	fields := make(map[string]string, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		fields[pairs[i].(string)] = pairs[i+1].(string)
	}

	got, err := decodeSession("d1", fields)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "d1" || got.RemoteDID != s.RemoteDID || got.Challenge != s.Challenge || got.State != s.State {
		t.Fatalf("unexpected session %+v", got)
	}
	if !got.CreatedAt.Equal(created) || !got.ConnectedAt.Equal(s.ConnectedAt) {
		t.Fatalf("timestamps lost: %v %v", got.CreatedAt, got.ConnectedAt)
	}
	if ok, err := got.RemoteProfile.Verify(context.Background(), mustParseKey(t, s.RemoteDID)); err != nil || !ok {
		t.Fatalf("stored profile no longer verifies: ok=%v err=%v", ok, err)
	}

	fields[fieldState] = "HALF_OPEN"
	if _, err := decodeSession("d1", fields); err == nil {
		t.Fatal("unknown state accepted")
	}
}

func mustParseKey(t *testing.T, did string) identity.Identity {
	t.Helper()
	id, err := identity.ParseKeyDID(did)
	if err != nil {
		t.Fatalf("parse %s: %v", did, err)
	}
	return id
}
