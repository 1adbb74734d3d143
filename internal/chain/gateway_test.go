package chain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/castora-xyz/castora-sub001/internal/crypto"
	"github.com/castora-xyz/castora-sub001/internal/domain"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fakeBackend struct {
	results  map[string][]byte
	callErrs map[string]error

	sent     []*types.Transaction
	sendErr  error
	notFound int
	status   uint64
	nonce    uint64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		results:  map[string][]byte{},
		callErrs: map[string]error{},
		status:   types.ReceiptStatusSuccessful,
		nonce:    7,
	}
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	m, err := contractABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	if err := f.callErrs[m.Name]; err != nil {
		return nil, err
	}
	return f.results[m.Name], nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(2), nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(10), BaseFee: big.NewInt(50)}, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if f.notFound > 0 {
		f.notFound--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: f.status, TxHash: hash, BlockNumber: big.NewInt(11), GasUsed: 90_000}, nil
}

func newTestGateway(t *testing.T, backend Backend) *Gateway {
	t.Helper()
	key, err := crypto.LoadKey(crypto.KeyConfig{RawPrivateKey: testKey})
	require.NoError(t, err)
	return New(Config{
		Chain:             domain.ChainSepolia,
		ChainID:           11155111,
		ContractAddress:   "0x1111111111111111111111111111111111111111",
		ConfirmPoll:       time.Millisecond,
		ConfirmTimeout:    time.Second,
		SupersededBackoff: time.Millisecond,
	}, backend, crypto.NewSigner(key), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestReadPoolDecodesTupleAndCreator(t *testing.T) {
	backend := newFakeBackend()
	stake := big.NewInt(1_000_000)
	pred := common.HexToAddress("0x2222222222222222222222222222222222222222")

	encoded, err := contractABI.Methods["getPool"].Outputs.Pack(poolTuple{
		PoolId: big.NewInt(42),
		Seeds: seedsTuple{
			PredictionToken: pred,
			StakeToken:      pred,
			StakeAmount:     stake,
			SnapshotTime:    big.NewInt(4600),
			WindowCloseTime: big.NewInt(2800),
			FeesPercent:     5,
			Multiplier:      2,
		},
		SeedsHash:           [32]byte{1},
		CreationTime:        big.NewInt(900),
		NoOfPredictions:     big.NewInt(10),
		SnapshotPrice:       big.NewInt(0),
		CompletionTime:      big.NewInt(0),
		WinAmount:           big.NewInt(0),
		NoOfWinners:         big.NewInt(0),
		NoOfClaimedWinnings: big.NewInt(0),
	})
	require.NoError(t, err)
	backend.results["getPool"] = encoded

	creator := common.HexToAddress("0x3333333333333333333333333333333333333333")
	encoded, err = contractABI.Methods["getPoolCreator"].Outputs.Pack(creator, uint16(3))
	require.NoError(t, err)
	backend.results["getPoolCreator"] = encoded

	pool, err := newTestGateway(t, backend).ReadPool(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, uint64(42), pool.PoolID)
	require.Equal(t, uint64(10), pool.NoOfPredictions)
	require.Equal(t, int64(2800), pool.Seeds.WindowCloseTime)
	require.Equal(t, uint16(2), pool.Seeds.Multiplier)
	require.Equal(t, pred.Hex(), pool.Seeds.PredictionToken)
	require.Equal(t, 0, stake.Cmp(pool.Seeds.StakeAmount))
	require.Equal(t, creator.Hex(), pool.Creator)
	require.Equal(t, uint16(3), pool.CreatorCompletionFeesPerc)
	require.True(t, pool.HasCreator())
}

func TestReadPoolUnknownID(t *testing.T) {
	backend := newFakeBackend()
	encoded, err := contractABI.Methods["getPool"].Outputs.Pack(poolTuple{
		PoolId:              big.NewInt(0),
		Seeds:               seedsTuple{StakeAmount: big.NewInt(0), SnapshotTime: big.NewInt(0), WindowCloseTime: big.NewInt(0)},
		CreationTime:        big.NewInt(0),
		NoOfPredictions:     big.NewInt(0),
		SnapshotPrice:       big.NewInt(0),
		CompletionTime:      big.NewInt(0),
		WinAmount:           big.NewInt(0),
		NoOfWinners:         big.NewInt(0),
		NoOfClaimedWinnings: big.NewInt(0),
	})
	require.NoError(t, err)
	backend.results["getPool"] = encoded

	_, err = newTestGateway(t, backend).ReadPool(context.Background(), 99)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReadPrediction(t *testing.T) {
	backend := newFakeBackend()
	who := common.HexToAddress("0x4444444444444444444444444444444444444444")
	encoded, err := contractABI.Methods["getPrediction"].Outputs.Pack(predictionTuple{
		Predicter:           who,
		PoolId:              big.NewInt(42),
		PredictionId:        big.NewInt(3),
		PredictionPrice:     big.NewInt(250_000_000),
		PredictionTime:      big.NewInt(1500),
		ClaimedWinningsTime: big.NewInt(0),
		IsAWinner:           true,
	})
	require.NoError(t, err)
	backend.results["getPrediction"] = encoded

	p, err := newTestGateway(t, backend).ReadPrediction(context.Background(), 42, 3)
	require.NoError(t, err)
	require.Equal(t, who.Hex(), p.Predicter)
	require.Equal(t, uint64(3), p.PredictionID)
	require.Equal(t, int64(250_000_000), p.PredictionPrice)
	require.True(t, p.IsAWinner)
}

func TestReadPredictionRejectsOutOfRangePrice(t *testing.T) {
	backend := newFakeBackend()
	// 2^64 + 5e9 would read as 5e9 if truncated to 64 bits.
	huge := new(big.Int).Add(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(5_000_000_000))
	encoded, err := contractABI.Methods["getPrediction"].Outputs.Pack(predictionTuple{
		Predicter:           common.HexToAddress("0x4444444444444444444444444444444444444444"),
		PoolId:              big.NewInt(42),
		PredictionId:        big.NewInt(2),
		PredictionPrice:     huge,
		PredictionTime:      big.NewInt(1500),
		ClaimedWinningsTime: big.NewInt(0),
	})
	require.NoError(t, err)
	backend.results["getPrediction"] = encoded

	_, err = newTestGateway(t, backend).ReadPrediction(context.Background(), 42, 2)
	require.Error(t, err)
	require.True(t, domain.IsFatal(err))
	require.Contains(t, err.Error(), "predictionPrice")
}

func TestReadPoolRejectsOutOfRangeField(t *testing.T) {
	backend := newFakeBackend()
	encoded, err := contractABI.Methods["getPool"].Outputs.Pack(poolTuple{
		PoolId: big.NewInt(42),
		Seeds: seedsTuple{
			StakeAmount:     big.NewInt(1),
			SnapshotTime:    new(big.Int).Lsh(big.NewInt(1), 63),
			WindowCloseTime: big.NewInt(2800),
		},
		CreationTime:        big.NewInt(0),
		NoOfPredictions:     big.NewInt(0),
		SnapshotPrice:       big.NewInt(0),
		CompletionTime:      big.NewInt(0),
		WinAmount:           big.NewInt(0),
		NoOfWinners:         big.NewInt(0),
		NoOfClaimedWinnings: big.NewInt(0),
	})
	require.NoError(t, err)
	backend.results["getPool"] = encoded

	_, err = newTestGateway(t, backend).ReadPool(context.Background(), 42)
	require.True(t, domain.IsFatal(err))
	require.Contains(t, err.Error(), "snapshotTime")
}

func TestWriteSendsSignedTxAndWaitsForReceipt(t *testing.T) {
	backend := newFakeBackend()
	backend.notFound = 2
	gw := newTestGateway(t, backend)

	require.NoError(t, gw.SetWinnersInBatch(context.Background(), 42, []uint64{3, 1}))
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	require.Equal(t, uint64(7), tx.Nonce())
	require.Equal(t, uint64(120_000), tx.Gas())
	require.Equal(t, big.NewInt(102), tx.GasFeeCap())
	require.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), *tx.To())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(11155111)), tx)
	require.NoError(t, err)
	require.Equal(t, gw.signer.Address(), from)

	args, err := contractABI.Methods["setWinnersInBatch"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Equal(t, []*big.Int{big.NewInt(3), big.NewInt(1)}, args[1])
}

func TestWriteRevertedReceipt(t *testing.T) {
	backend := newFakeBackend()
	backend.status = types.ReceiptStatusFailed

	err := newTestGateway(t, backend).FinalizePoolCompletion(context.Background(), 42)
	require.Error(t, err)
	require.Contains(t, err.Error(), "reverted")
}

func TestWriteSimulationFailureSendsNothing(t *testing.T) {
	backend := newFakeBackend()
	backend.callErrs["initiatePoolCompletion"] = errors.New("execution reverted: pool not closed")

	err := newTestGateway(t, backend).InitiatePoolCompletion(context.Background(), 42, 100, 5)
	require.Error(t, err)
	require.NotErrorIs(t, err, domain.ErrTxSuperseded)
	require.Empty(t, backend.sent)
}

func TestWriteSupersededBacksOff(t *testing.T) {
	backend := newFakeBackend()
	backend.sendErr = errors.New("transaction replaced by one with higher priority")

	err := newTestGateway(t, backend).FinalizePoolCompletion(context.Background(), 42)
	require.ErrorIs(t, err, domain.ErrTxSuperseded)
}

func TestSeedsHashTracksEveryField(t *testing.T) {
	seeds := domain.PoolSeeds{
		PredictionToken: "0x2222222222222222222222222222222222222222",
		StakeToken:      "0x3333333333333333333333333333333333333333",
		StakeAmount:     big.NewInt(1000),
		SnapshotTime:    4600,
		WindowCloseTime: 2800,
		FeesPercent:     5,
		Multiplier:      2,
	}
	a, err := SeedsHash(seeds)
	require.NoError(t, err)
	b, err := SeedsHash(seeds)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 66)

	seeds.IsUnlisted = true
	c, err := SeedsHash(seeds)
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}
