package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config-test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("CONFIG_FILE", path)
	resetRuntimeConfig()
	t.Cleanup(resetRuntimeConfig)
	return path
}

func TestLoadAPIServerConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CONFIG_PHASE", "unit-test-missing")
	resetRuntimeConfig()
	t.Cleanup(resetRuntimeConfig)

	cfg, err := LoadAPIServerConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://api.devnet.solana.com", cfg.Chain.RPCURL)
	assert.Equal(t, rpc.CommitmentConfirmed, cfg.Chain.Commitment)
	assert.Equal(t, 10*time.Second, cfg.Chain.RPCTimeout)
	assert.Equal(t, defaultProgramIDs, cfg.Chain.Programs)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.ConfirmDelay)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)

	source, err := CurrentConfigSource()
	require.NoError(t, err)
	assert.False(t, source.Loaded)
	assert.Equal(t, "unit-test-missing", source.Phase)
}

func TestConfigFileIsFlattenedAndEnvWins(t *testing.T) {
	useConfigFile(t, `
solana:
  rpc_url: http://127.0.0.1:8899
  commitment: finalized
chronos:
  rpc-timeout: 3s
  dex_program_id: 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin
api_server:
  allowed_origins:
    - http://localhost:3000
    - https://chronos.example
  listen_addr: ":9090"
indexer:
  poll_interval: 2s
`)
	t.Setenv("API_SERVER_LISTEN_ADDR", ":7070")

	cfg, err := LoadAPIServerConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8899", cfg.Chain.RPCURL)
	assert.Equal(t, rpc.CommitmentFinalized, cfg.Chain.Commitment)
	assert.Equal(t, 3*time.Second, cfg.Chain.RPCTimeout)
	assert.Equal(t, "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin", cfg.Chain.Programs.DEX.String())
	assert.Equal(t, defaultProgramIDs.Vault, cfg.Chain.Programs.Vault)
	assert.Equal(t, []string{"http://localhost:3000", "https://chronos.example"}, cfg.AllowedOrigins)
	assert.Equal(t, ":7070", cfg.ListenAddr)

	idx, err := LoadIndexerConfig()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, idx.PollInterval)

	source, err := CurrentConfigSource()
	require.NoError(t, err)
	assert.True(t, source.Loaded)
}

func TestInvalidValuesFailStartup(t *testing.T) {
	cases := map[string]string{
		"SOLANA_COMMITMENT":        "eventually",
		"CHRONOS_RPC_TIMEOUT":      "-1s",
		"CHRONOS_DEX_PROGRAM_ID":   "not-a-key",
		"CHRONOS_SKIP_PREFLIGHT":   "maybe",
		"API_SERVER_CONFIRM_DELAY": "soon",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			useConfigFile(t, "{}\n")
			t.Setenv(key, value)
			_, err := LoadAPIServerConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid "+key)
		})
	}
}

func TestExplicitMissingConfigFileFails(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	resetRuntimeConfig()
	t.Cleanup(resetRuntimeConfig)

	_, err := LoadIndexerConfig()
	assert.Error(t, err)
}

func TestNormalizeKeySegment(t *testing.T) {
	assert.Equal(t, "RPC_URL", normalizeKeySegment("rpc-url"))
	assert.Equal(t, "API_SERVER", normalizeKeySegment(" api.server "))
	assert.Equal(t, "", normalizeKeySegment("--"))
}
