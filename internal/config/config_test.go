package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ROOT_DOMAIN", "example.com")
	t.Setenv("DATABASE_URL", "postgres://localhost/tenancy_test")
	t.Setenv("PROVISION_SECRET", "secret")
}

func TestLoadSyncOriginIDFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SESSION_ORIGIN_ID", "node-a")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "node-a", cfg.SyncOriginID)
}

func TestLoadSyncOriginIDStableAcrossLoads(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SESSION_ORIGIN_ID", "")

	first, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, first.SyncOriginID)

	second, err := Load()
	require.NoError(t, err)
	require.Equal(t, first.SyncOriginID, second.SyncOriginID)
}

func TestLoadShutdownTimeout(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	t.Setenv("HTTP_SHUTDOWN_TIMEOUT", "3s")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}
