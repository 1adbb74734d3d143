package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleTOML = `
mode = "worker"

[chains.sepolia]
rpc_url = "https://sepolia.example/rpc/abc123"
chain_id = 11155111
contract_address = "0x1111111111111111111111111111111111111111"

  [[chains.sepolia.tokens]]
  address = "0x2222222222222222222222222222222222222222"
  symbol = "ETH"
  decimals = 18

[wallet]
private_key = "deadbeef"

[oracle.feeds]
ETH = "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace"

[[syncer.templates]]
name = "eth-1h"
chains = ["sepolia"]
prediction_token = "0x2222222222222222222222222222222222222222"
stake_token = "0x2222222222222222222222222222222222222222"
stake_amount = "1000000000000000"
duration = "1h"
cadence = "1h"
fees_percent = 5
multiplier = 2
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaultsAndChainDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "worker", cfg.Mode)
	require.Equal(t, "castora-settlement", cfg.Temporal.TaskQueue)

	ch := cfg.Chains["sepolia"]
	require.Equal(t, CompletionBatched, ch.CompletionMode)
	require.Equal(t, 2*time.Second, ch.ConfirmPoll.Duration)
	require.Equal(t, 5*time.Second, ch.SupersededWait.Duration)
	require.Len(t, cfg.Syncer.Templates, 1)
	require.Equal(t, time.Hour, cfg.Syncer.Templates[0].Duration.Duration)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CASTORA_CHAINS_SEPOLIA_RPC_URL", "https://override.example")
	t.Setenv("CASTORA_TEMPORAL_MAX_ATTEMPTS", "3")
	t.Setenv("CASTORA_NOTIFY_EVENTS", "error, pool_completed ,")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	require.Equal(t, "https://override.example", cfg.Chains["sepolia"].RPCURL)
	require.Equal(t, 3, cfg.Temporal.MaxAttempts)
	require.Equal(t, []string{"error", "pool_completed"}, cfg.Notify.Events)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Chains["mainnet"] = ChainConfig{}
	cfg.Chains["sepolia"] = ChainConfig{
		RPCURL:          "http://rpc",
		ChainID:         1,
		ContractAddress: "not-an-address",
		CompletionMode:  "parallel",
	}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	require.Contains(t, msg, `unknown mode "trade"`)
	require.Contains(t, msg, "chains.mainnet: unsupported chain")
	require.Contains(t, msg, "chains.sepolia: contract_address")
	require.Contains(t, msg, "chains.sepolia: completion_mode")
	require.Contains(t, msg, "wallet: either private_key or encrypted_key_path must be set")
}

func TestValidateTemplate(t *testing.T) {
	tpl := TemplateConfig{
		Name:            "bad",
		PredictionToken: "0x2222222222222222222222222222222222222222",
		StakeToken:      "0x2222222222222222222222222222222222222222",
		StakeAmount:     "-5",
		Duration:        Duration(time.Hour),
		Cadence:         Duration(time.Hour),
		Multiplier:      1,
		FeesPercent:     5,
	}
	problems := tpl.problems(0)
	require.Len(t, problems, 2)
	require.Contains(t, problems[0], "stake_amount")
	require.Contains(t, problems[1], "multiplier")
}

func TestRedactedConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	red := RedactedConfig(cfg)
	require.Equal(t, "***", red.Wallet.PrivateKey)
	require.Equal(t, "***", red.Chains["sepolia"].RPCURL)
	require.Equal(t, "", red.Wallet.KeyPassword)

	// The original is untouched.
	require.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)
	require.Equal(t, "https://sepolia.example/rpc/abc123", cfg.Chains["sepolia"].RPCURL)
}

func TestChainNamesFollowsSupportedOrder(t *testing.T) {
	cfg := Defaults()
	cfg.Chains["sepolia"] = ChainConfig{}
	cfg.Chains["monadtestnet"] = ChainConfig{}
	names := cfg.ChainNames()
	require.Len(t, names, 2)
	require.Equal(t, "monadtestnet", names[0].String())
	require.Equal(t, "sepolia", names[1].String())
}
