package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"BITCOIN_RPC_URL", "BITCOIN_RPC_USER", "BITCOIN_RPC_PASS",
		"START_HEIGHT", "CONFIRMATIONS", "BATCH_SIZE", "DATA_DIR",
		"NETWORK", "LOG_FILE", "API_LISTEN", "MAX_REORG_DEPTH", "POLL_INTERVAL",
	}
	for _, v := range vars {
		t.Setenv(v, "")
	}
}

func TestLoadAppliesDefaultsWhenEnvEmpty(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8332", cfg.BitcoinRPCURL)
	require.Equal(t, "dev", cfg.BitcoinRPCUser)
	require.Equal(t, int64(923580), cfg.StartHeight)
	require.Equal(t, int64(3), cfg.Confirmations)
	require.Equal(t, 1, cfg.BatchSize)
	require.Equal(t, ".brc721/", cfg.DataDir)
	require.Equal(t, "127.0.0.1:8083", cfg.APIListen)
}

func TestLoadOverlaysEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("BITCOIN_RPC_URL", "http://node:8332")
	t.Setenv("START_HEIGHT", "100")
	t.Setenv("CONFIRMATIONS", "6")
	t.Setenv("BATCH_SIZE", "4")
	t.Setenv("NETWORK", "testnet")
	t.Setenv("POLL_INTERVAL", "5s")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://node:8332", cfg.BitcoinRPCURL)
	require.Equal(t, int64(100), cfg.StartHeight)
	require.Equal(t, int64(6), cfg.Confirmations)
	require.Equal(t, 4, cfg.BatchSize)
	require.Equal(t, "testnet", cfg.Network)
	require.Equal(t, 5*time.Second, cfg.PollInterval)
}

func TestLoadRejectsMalformedIntegerEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("START_HEIGHT", "not-a-number")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadMissingEnvFileIsNotAnError(t *testing.T) {
	clearEnv(t)
	_, err := Load("/nonexistent/path/.env")
	require.NoError(t, err)
}

func TestStorePathJoinsDataDirNetworkAndFilename(t *testing.T) {
	cfg := defaults()
	cfg.DataDir = ".brc721"
	cfg.Network = "regtest"
	require.Equal(t, ".brc721/regtest/brc721.sqlite", cfg.StorePath())
}
