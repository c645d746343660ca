package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/trufnetwork/token-attester/internal/action"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func baseEnv() map[string]string {
	return map[string]string{
		"ETHEREUM_KEY":  testKey,
		"SCHEMA_ID":     "17",
		"LIT_NODE_URLS": "https://a.example,https://b.example,https://c.example",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(baseEnv())
	require.NoError(t, err)

	assert.Equal(t, "datil-dev", cfg.LitNetwork)
	assert.Equal(t, "./lit_storage.db", cfg.LitStorage)
	assert.Equal(t, 2*time.Minute, cfg.LitRequestTimeout)
	assert.False(t, cfg.Production())
	assert.False(t, cfg.MetricsEnabled)

	lc := cfg.LitConfig(nil)
	assert.Equal(t, 2, lc.HandshakeRetries)
	assert.Equal(t, []string{"https://a.example", "https://b.example", "https://c.example"}, lc.NodeURLs)

	tc := cfg.TaskConfig()
	assert.Equal(t, "https://sepolia.base.org", tc.RPCURL)
	assert.EqualValues(t, 84532, tc.ChainID)
	assert.EqualValues(t, 17, tc.SchemaID)
	assert.Equal(t, action.DefaultRegistryAddress, tc.RegistryAddress)
	assert.Equal(t, action.DefaultGasLimit, tc.GasLimit)
	assert.Equal(t, action.DefaultIPFSGateway, tc.IPFSGateway)
	assert.Equal(t, "https://ape.store/api/token/base/0xabc", cfg.MetadataClient().URL("0xabc"))
}

func TestLoadOverrides(t *testing.T) {
	vars := baseEnv()
	vars["NODE_ENV"] = "production"
	vars["LIT_MIN_NODE_COUNT"] = "3"
	vars["LIT_HANDSHAKE_RETRIES"] = "-1"
	vars["LIT_STORAGE"] = "redis://localhost:6379/0"
	vars["ATTEST_CHAIN"] = "base"
	vars["GAS_LIMIT"] = "500000"
	vars["METRICS_ENABLED"] = "true"

	cfg, err := LoadFrom(vars)
	require.NoError(t, err)
	assert.True(t, cfg.Production())
	assert.True(t, cfg.MetricsEnabled)
	assert.Len(t, cfg.LitNodeURLs, 3)

	lc := cfg.LitConfig(nil)
	assert.Equal(t, 3, lc.MinNodeCount)
	assert.Equal(t, -1, lc.HandshakeRetries)
	assert.False(t, lc.Debug)

	tc := cfg.TaskConfig()
	assert.EqualValues(t, 8453, tc.ChainID)
	assert.Equal(t, "https://mainnet.base.org", tc.RPCURL)
	assert.EqualValues(t, 500000, tc.GasLimit)
}

func TestLoadExplicitRPC(t *testing.T) {
	vars := baseEnv()
	vars["ATTEST_RPC_URL"] = "https://rpc.example"
	cfg, err := LoadFrom(vars)
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.example", cfg.TaskConfig().RPCURL)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]string)
		wantErr string
	}{
		{
			name:    "missing key",
			mutate:  func(m map[string]string) { delete(m, "ETHEREUM_KEY") },
			wantErr: "ETHEREUM_KEY",
		},
		{
			name:    "missing node urls",
			mutate:  func(m map[string]string) { delete(m, "LIT_NODE_URLS") },
			wantErr: "LIT_NODE_URLS",
		},
		{
			name:    "empty node urls",
			mutate:  func(m map[string]string) { m["LIT_NODE_URLS"] = "" },
			wantErr: "LIT_NODE_URLS",
		},
		{
			name:    "short key",
			mutate:  func(m map[string]string) { m["ETHEREUM_KEY"] = "0x1234" },
			wantErr: "ETHEREUM_KEY",
		},
		{
			name:    "missing schema",
			mutate:  func(m map[string]string) { delete(m, "SCHEMA_ID") },
			wantErr: "SCHEMA_ID",
		},
		{
			name:    "zero schema",
			mutate:  func(m map[string]string) { m["SCHEMA_ID"] = "0" },
			wantErr: "SCHEMA_ID",
		},
		{
			name:    "unknown chain",
			mutate:  func(m map[string]string) { m["ATTEST_CHAIN"] = "solana" },
			wantErr: "ATTEST_CHAIN",
		},
		{
			name:    "bad registry",
			mutate:  func(m map[string]string) { m["SIGN_PROTOCOL_ADDRESS"] = "0x12" },
			wantErr: "SIGN_PROTOCOL_ADDRESS",
		},
		{
			name:    "bad pkp",
			mutate:  func(m map[string]string) { m["PKP_ADDRESS"] = "nope" },
			wantErr: "PKP_ADDRESS",
		},
		{
			name: "threshold above nodes",
			mutate: func(m map[string]string) {
				m["LIT_NODE_URLS"] = "https://a.example"
				m["LIT_MIN_NODE_COUNT"] = "2"
			},
			wantErr: "LIT_MIN_NODE_COUNT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars := baseEnv()
			tt.mutate(vars)
			_, err := LoadFrom(vars)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{NodeEnv: "production"}
	l, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))

	cfg.NodeEnv = "development"
	l, err = cfg.NewLogger()
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}
