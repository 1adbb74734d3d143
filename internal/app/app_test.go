package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/castora-xyz/castora-sub001/internal/config"
	"github.com/castora-xyz/castora-sub001/internal/domain"
	"github.com/castora-xyz/castora-sub001/internal/pipeline"
)

func TestTemplatesConvert(t *testing.T) {
	out, err := templates([]config.TemplateConfig{{
		Name:            "eth-hourly",
		Chains:          []string{"Sepolia"},
		PredictionToken: "0x00000000000000000000000000000000000000e1",
		StakeToken:      "0x00000000000000000000000000000000000000c1",
		StakeAmount:     "1000000",
		Duration:        config.Duration(30 * time.Minute),
		Cadence:         config.Duration(time.Hour),
		FeesPercent:     5,
		Multiplier:      2,
	}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, []domain.Chain{domain.ChainSepolia}, out[0].Chains)
	require.Equal(t, "1000000", out[0].StakeAmount.String())
	require.Equal(t, time.Hour, out[0].Cadence)
}

func TestTemplatesRejectBadInput(t *testing.T) {
	_, err := templates([]config.TemplateConfig{{Name: "bad", StakeAmount: "1e6"}})
	require.ErrorContains(t, err, "stake_amount")

	_, err = templates([]config.TemplateConfig{{Name: "bad", StakeAmount: "1", Chains: []string{"mainnet"}}})
	require.ErrorContains(t, err, "unsupported chain")
}

func TestCompletionModesAndTokens(t *testing.T) {
	cfg := &config.Config{Chains: map[string]config.ChainConfig{
		"sepolia": {
			CompletionMode: config.CompletionSingle,
			Tokens:         []config.TokenConfig{{Address: "0xAbC", Symbol: "ETH", Decimals: 18}},
		},
		"monadtestnet": {CompletionMode: config.CompletionBatched},
	}}

	modes := completionModes(cfg)
	require.Equal(t, pipeline.CompletionSingle, modes[domain.ChainSepolia])
	require.Equal(t, pipeline.CompletionBatched, modes[domain.ChainMonadTestnet])

	tokens := chainTokens(cfg)
	require.Equal(t, []domain.Token{{Address: "0xAbC", Symbol: "ETH", Decimals: 18}}, tokens[domain.ChainSepolia])
	require.Empty(t, tokens[domain.ChainMonadTestnet])
}

func TestModeNeeds(t *testing.T) {
	require.True(t, needsArchives(ModeWorker))
	require.True(t, needsArchives(ModeFull))
	require.False(t, needsArchives(ModeSyncer))

	swept := config.Defaults()
	swept.Mode = ModeSyncer
	require.True(t, needsArchiveStore(&swept), "syncer mode runs the settlement sweep")
	swept.Pipeline.SweepCron = ""
	require.False(t, needsArchiveStore(&swept))

	cfg := &config.Config{Mode: ModeSyncer, Pipeline: config.PipelineConfig{LeaderboardEnabled: true}}
	require.False(t, needsLeaderboard(cfg))
	cfg.Mode = ModeFull
	require.True(t, needsLeaderboard(cfg))
}

func TestGatewayConfig(t *testing.T) {
	gc := gatewayConfig(domain.ChainSepolia, config.ChainConfig{
		RPCURL:          "https://rpc.sepolia.org",
		ChainID:         11155111,
		ContractAddress: "0x1",
		ConfirmPoll:     config.Duration(3 * time.Second),
		SupersededWait:  config.Duration(15 * time.Second),
	})
	require.Equal(t, domain.ChainSepolia, gc.Chain)
	require.Equal(t, int64(11155111), gc.ChainID)
	require.Equal(t, 3*time.Second, gc.ConfirmPoll)
	require.Equal(t, 15*time.Second, gc.SupersededBackoff)
}
