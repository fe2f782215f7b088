package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/adeilh/rakh-auth/authapi"
	"github.com/adeilh/rakh-auth/httpx"
	"github.com/adeilh/rakh-auth/internal/config"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Auth.Digest = "sha256"
	cfg.Auth.SweepInterval = 10 * time.Millisecond
	return cfg
}

func TestBuildServiceWarnsOnMissingSecret(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	svc, err := buildService(context.Background(), testConfig(), zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	assert.Equal(t, 1, logs.FilterMessageSnippet("no signing secret configured").Len())
	assert.Len(t, svc.janitors, 1)
}

func TestBuildServiceRejectsBadBackends(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Digest = "md5"
	_, err := buildService(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)

	cfg = testConfig()
	cfg.Storage.Revocations = config.BackendRedis
	cfg.Storage.RedisURL = "redis://127.0.0.1:1/0"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = buildService(ctx, cfg, zap.NewNop())
	require.Error(t, err)
}

func TestServiceEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.Auth.Secret = "end-to-end-secret-with-32-bytes!"
	svc, err := buildService(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	for _, j := range svc.janitors {
		go j(ctx)
	}

	srv := httpx.NewServer(serverOptions(cfg, zap.NewNop())...)
	srv.RegisterRoutes(authapi.NewHandler(svc.auth).Register)
	ts := httpx.NewServerTestServer(srv)
	defer ts.Close()

	client := authapi.NewClient(ts.BaseURL())
	login, err := client.Login(ctx, "admin", "admin123")
	require.NoError(t, err)

	me, err := client.Me(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", me.Username)

	require.NoError(t, client.Logout(ctx, login.Token))
	_, err = client.Me(ctx, login.Token)
	require.Error(t, err)
}
