package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/adeilh/rakh-auth/auth"
	"github.com/adeilh/rakh-auth/cache/memory"
	"github.com/adeilh/rakh-auth/cache/redis"
	"github.com/adeilh/rakh-auth/db/sql/postgres"
	"github.com/adeilh/rakh-auth/internal/config"
)

const revocationKeyPrefix = "rakh-auth:revoked"

// service is the authenticator plus the resources backing it.
type service struct {
	auth     *auth.Authenticator
	janitors []func(context.Context)
	closers  []func() error
}

func (s *service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

func buildService(ctx context.Context, cfg config.Config, log *zap.Logger) (_ *service, err error) {
	svc := &service{}
	defer func() {
		if err != nil {
			_ = svc.Close()
		}
	}()

	secret := []byte(cfg.Auth.Secret)
	if len(secret) == 0 {
		secret = make([]byte, auth.MinSecretLength)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
		log.Warn("no signing secret configured, using a random one; tokens will not survive a restart")
	} else if len(secret) < auth.MinSecretLength {
		log.Warn("signing secret is shorter than recommended", zap.Int("min_length", auth.MinSecretLength))
	}

	digester, err := auth.NewPepperedDigester(cfg.Auth.Digest, []byte(cfg.Auth.Pepper))
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	if cfg.UsesPostgres() {
		db, err = postgres.Open(ctx, postgres.WithDSN(cfg.Storage.PostgresDSN), postgres.WithMigrations(true))
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, db.Close)
		log.Info("postgres connected")
	}

	var principals auth.PrincipalStore
	switch cfg.Storage.Principals {
	case config.BackendPostgres:
		principals = postgres.NewPrincipalRepository(db)
	default:
		principals = auth.NewMemoryPrincipalStore()
	}

	var revocations auth.RevocationList
	switch cfg.Storage.Revocations {
	case config.BackendPostgres:
		repo := postgres.NewRevocationRepository(db)
		svc.janitors = append(svc.janitors, func(ctx context.Context) {
			repo.Run(ctx, cfg.Auth.SweepInterval, log.Named("revocations"))
		})
		revocations = repo
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			return nil, err
		}
		store := redis.NewStore(opts)
		svc.closers = append(svc.closers, store.Close)
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		log.Info("redis connected", zap.String("addr", opts.Addr))
		revocations = auth.NewCacheRevocationList(store, revocationKeyPrefix)
	default:
		store := memory.New()
		svc.janitors = append(svc.janitors, func(ctx context.Context) {
			store.Run(ctx, cfg.Auth.SweepInterval)
		})
		revocations = auth.NewCacheRevocationList(store, revocationKeyPrefix)
	}

	encoding := auth.StdSegmentEncoding
	if cfg.Auth.Encoding == "rawurl" {
		encoding = auth.RawURLSegmentEncoding
	}

	a, err := auth.NewAuthenticator(auth.Config{
		Secret:      secret,
		TokenTTL:    cfg.Auth.TokenTTL,
		Encoding:    encoding,
		Digester:    digester,
		Principals:  principals,
		Revocations: revocations,
		Logger:      log.Named("auth"),
	})
	if err != nil {
		return nil, err
	}
	svc.auth = a

	if cfg.Auth.Seed {
		if err := a.Seed(ctx, auth.DefaultSeeds()); err != nil {
			return nil, err
		}
		log.Info("default principals seeded")
	}
	return svc, nil
}
