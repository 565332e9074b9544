// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Command oaep-node runs an OAEP agent: it loads or creates the agent's key,
// issues its own AgentProfile from a YAML manifest and answers connection
// handshakes over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/oap-foundation/oaep-go/config"
	"github.com/oap-foundation/oaep-go/handshake"
	"github.com/oap-foundation/oaep-go/identity"
	"github.com/oap-foundation/oaep-go/keys"
	"github.com/oap-foundation/oaep-go/profile"
	"github.com/oap-foundation/oaep-go/transport/httpapi"
	"github.com/oap-foundation/oaep-go/types"
)

func main() {
	cfg := config.MustLoad()
	log := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("oaep-node stopped")
	}
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if level < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	return log
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	keyStore, err := keys.NewFileKeyStore(cfg.Keys.Dir, []byte(cfg.Keys.Passphrase))
	if err != nil {
		return err
	}

	fetcher := identity.NewHTTPFetcher(identity.FetcherOptions{
		HTTPClient:       &http.Client{Timeout: cfg.Resolver.Timeout},
		MaxResponseBytes: cfg.Resolver.MaxDocumentBytes,
	})
	resolver := identity.NewResolverWithOptions(fetcher, identity.ResolverOptions{
		CacheSize: cfg.Resolver.CacheSize,
		CacheTTL:  cfg.Resolver.CacheTTL,
	})

	local, err := loadIdentity(ctx, cfg, keyStore, fetcher)
	if err != nil {
		return err
	}

	manifest, err := config.LoadManifest(cfg.Identity.ManifestPath)
	if err != nil {
		return err
	}
	unsigned, err := profile.New(manifest.Params(local, time.Now()))
	if err != nil {
		return fmt.Errorf("oaep-node: build profile: %w", err)
	}
	signed, err := unsigned.Sign(local)
	if err != nil {
		return fmt.Errorf("oaep-node: sign profile: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sessions, closeStore, err := newSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := handshake.Options{
		Resolver: resolver,
		Store:    sessions,
		Logger:   log,
		Metrics:  handshake.NewMetrics(reg),
	}
	if cfg.Sessions.VerifyProfiles {
		opts.ProfileVerifier = profile.NewVerifier(resolver)
	}
	engine, err := handshake.NewEngine(local, signed, opts)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpapi.NewServer(engine, httpapi.Options{
			Logger:       log,
			Gatherer:     reg,
			MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		}).Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go sweepSessions(ctx, engine, cfg.Sessions, log)

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.HTTP.Addr, "did": local.String()}).Info("oaep-node listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("oaep-node: serve: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("oaep-node: shutdown: %w", err)
	}
	return nil
}

// loadIdentity restores the node's key from the key store, creating and
// persisting one on first start.
func loadIdentity(ctx context.Context, cfg *config.Config, store keys.KeyStore, fetcher identity.DocumentFetcher) (identity.Identity, error) {
	switch types.DIDMethod(cfg.Identity.Method) {
	case types.DIDMethodKey:
		dids, err := store.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, did := range dids {
			if !strings.HasPrefix(did, "did:key:") {
				continue
			}
			kp, err := store.Get(ctx, did)
			if err != nil {
				return nil, err
			}
			return identity.NewKeyIdentity(kp.PublicKey, kp.PrivateKey)
		}
		id, err := identity.GenerateKeyIdentity()
		if err != nil {
			return nil, err
		}
		if err := store.Put(ctx, id.String(), id.KeyPair()); err != nil {
			return nil, err
		}
		return id, nil

	case types.DIDMethodWeb:
		domain, path := cfg.Identity.WebDomain, cfg.Identity.WebPathSegments()
		probe, err := identity.NewWebIdentity(domain, path, nil, fetcher)
		if err != nil {
			return nil, err
		}
		did := probe.String()
		kp, err := store.Get(ctx, did)
		if errors.Is(err, keys.ErrKeyNotFound) {
			if kp, err = keys.GenerateKeyPair(); err != nil {
				return nil, err
			}
			err = store.Put(ctx, did, kp)
		}
		if err != nil {
			return nil, err
		}
		web, err := identity.NewWebIdentity(domain, path, kp, fetcher)
		if err != nil {
			return nil, err
		}
		var services []identity.Service
		if cfg.HTTP.PublicURL != "" {
			services = append(services, identity.Service{
				ID:              did + "#oaep",
				Type:            "OAEPService",
				ServiceEndpoint: strings.TrimRight(cfg.HTTP.PublicURL, "/") + "/oaep/v1",
			})
		}
		if _, err := web.CreateDocument(services); err != nil {
			return nil, err
		}
		return web, nil

	default:
		return nil, &types.ErrValidation{Field: "OAEP_DID_METHOD", Reason: "unsupported method " + cfg.Identity.Method}
	}
}

func newSessionStore(ctx context.Context, cfg *config.Config) (handshake.SessionStore, func(), error) {
	if cfg.Sessions.Store != config.StoreRedis {
		return handshake.NewMemoryStore(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("oaep-node: redis %s: %w", cfg.Redis.Addr, err)
	}
	return handshake.NewRedisStore(client, cfg.Sessions.MaxAge), func() { client.Close() }, nil
}

func sweepSessions(ctx context.Context, engine *handshake.Engine, cfg config.SessionConfig, log logrus.FieldLogger) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := engine.CleanupExpiredSessions(ctx, cfg.MaxAge); err != nil {
				log.WithError(err).Error("session sweep failed")
			}
		}
	}
}
