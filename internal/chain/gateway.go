// Package chain implements the settlement contract gateway over go-ethereum.
// One Gateway is resolved per configured chain at startup.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/castora-xyz/castora-sub001/internal/domain"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of *ethclient.Client the gateway needs.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TxSigner signs transactions with the operator key.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Config describes one contract deployment.
type Config struct {
	Chain             domain.Chain
	RPCURL            string
	ChainID           int64
	ContractAddress   string
	ConfirmPoll       time.Duration
	ConfirmTimeout    time.Duration
	SupersededBackoff time.Duration
}

// Gateway implements domain.ChainGateway for one chain.
type Gateway struct {
	cfg      Config
	backend  Backend
	signer   TxSigner
	contract common.Address
	chainID  *big.Int
	logger   *slog.Logger

	// sendMu serializes nonce assignment so concurrent writes from the same
	// operator account do not collide.
	sendMu sync.Mutex
}

// Dial connects to cfg.RPCURL and returns a Gateway using it.
func Dial(ctx context.Context, cfg Config, signer TxSigner, logger *slog.Logger) (*Gateway, func(), error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: dial %s: %w", cfg.Chain, err)
	}
	return New(cfg, client, signer, logger), client.Close, nil
}

// New builds a Gateway on an existing backend.
func New(cfg Config, backend Backend, signer TxSigner, logger *slog.Logger) *Gateway {
	if cfg.ConfirmPoll <= 0 {
		cfg.ConfirmPoll = 2 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 3 * time.Minute
	}
	return &Gateway{
		cfg:      cfg,
		backend:  backend,
		signer:   signer,
		contract: common.HexToAddress(cfg.ContractAddress),
		chainID:  big.NewInt(cfg.ChainID),
		logger: logger.With(
			slog.String("component", "chain_gateway"),
			slog.String("chain", cfg.Chain.String()),
		),
	}
}

// Chain returns the chain this gateway addresses.
func (g *Gateway) Chain() domain.Chain {
	return g.cfg.Chain
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// ReadPool returns the pool record and its creator. It returns
// domain.ErrNotFound for ids the contract has never assigned.
func (g *Gateway) ReadPool(ctx context.Context, poolID uint64) (domain.Pool, error) {
	out, err := g.call(ctx, "getPool", new(big.Int).SetUint64(poolID))
	if err != nil {
		return domain.Pool{}, err
	}
	raw := *abi.ConvertType(out[0], new(poolTuple)).(*poolTuple)
	if raw.PoolId == nil || raw.PoolId.Sign() == 0 {
		return domain.Pool{}, fmt.Errorf("chain: pool %d on %s: %w", poolID, g.cfg.Chain, domain.ErrNotFound)
	}
	pool, err := raw.toDomain()
	if err != nil {
		return domain.Pool{}, fmt.Errorf("chain: pool %d on %s: %w", poolID, g.cfg.Chain, err)
	}

	creator, err := g.call(ctx, "getPoolCreator", new(big.Int).SetUint64(poolID))
	if err != nil {
		return domain.Pool{}, err
	}
	if addr, ok := creator[0].(common.Address); ok && addr != (common.Address{}) {
		pool.Creator = addr.Hex()
		pool.CreatorCompletionFeesPerc, _ = creator[1].(uint16)
	}
	return pool, nil
}

// ReadPrediction returns one prediction of a pool.
func (g *Gateway) ReadPrediction(ctx context.Context, poolID, predictionID uint64) (domain.Prediction, error) {
	out, err := g.call(ctx, "getPrediction", new(big.Int).SetUint64(poolID), new(big.Int).SetUint64(predictionID))
	if err != nil {
		return domain.Prediction{}, err
	}
	raw := *abi.ConvertType(out[0], new(predictionTuple)).(*predictionTuple)
	p, err := raw.toDomain()
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("chain: prediction %d of pool %d on %s: %w", predictionID, poolID, g.cfg.Chain, err)
	}
	return p, nil
}

// PoolIDBySeedsHash resolves a seeds hash to its pool id, 0 if none.
func (g *Gateway) PoolIDBySeedsHash(ctx context.Context, seedsHash string) (uint64, error) {
	out, err := g.call(ctx, "getPoolIdWithSeedsHash", common.HexToHash(seedsHash))
	if err != nil {
		return 0, err
	}
	return uintOut(out)
}

// NoOfUserCreatedPools returns the community pool counter.
func (g *Gateway) NoOfUserCreatedPools(ctx context.Context) (uint64, error) {
	out, err := g.call(ctx, "noOfUserCreatedPools")
	if err != nil {
		return 0, err
	}
	return uintOut(out)
}

// UserCreatedPoolID returns the pool id at a 0-based community pool index.
func (g *Gateway) UserCreatedPoolID(ctx context.Context, index uint64) (uint64, error) {
	out, err := g.call(ctx, "userCreatedPoolIds", new(big.Int).SetUint64(index))
	if err != nil {
		return 0, err
	}
	return uintOut(out)
}

func (g *Gateway) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	res, err := g.backend.CallContract(ctx, ethereum.CallMsg{To: &g.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s on %s: %w", method, g.cfg.Chain, err)
	}
	out, err := contractABI.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("chain: %s returned no values", method)
	}
	return out, nil
}

func uintOut(out []any) (uint64, error) {
	v, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("chain: unexpected output type %T", out[0])
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("chain: output %s overflows uint64", v)
	}
	return v.Uint64(), nil
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// CreatePool submits createPool for seeds.
func (g *Gateway) CreatePool(ctx context.Context, seeds domain.PoolSeeds) error {
	return g.write(ctx, "createPool", toSeedsTuple(seeds))
}

// InitiatePoolCompletion submits phase one of the batched completion.
func (g *Gateway) InitiatePoolCompletion(ctx context.Context, poolID uint64, snapshotPrice int64, batchSize uint64) error {
	return g.write(ctx, "initiatePoolCompletion",
		new(big.Int).SetUint64(poolID), big.NewInt(snapshotPrice), new(big.Int).SetUint64(batchSize))
}

// SetWinnersInBatch submits one batch of winner prediction ids.
func (g *Gateway) SetWinnersInBatch(ctx context.Context, poolID uint64, predictionIDs []uint64) error {
	return g.write(ctx, "setWinnersInBatch", new(big.Int).SetUint64(poolID), bigIDs(predictionIDs))
}

// FinalizePoolCompletion locks in completionTime and winAmount.
func (g *Gateway) FinalizePoolCompletion(ctx context.Context, poolID uint64) error {
	return g.write(ctx, "finalizePoolCompletion", new(big.Int).SetUint64(poolID))
}

// CompletePool is the single-transaction completion.
func (g *Gateway) CompletePool(ctx context.Context, poolID uint64, snapshotPrice int64, noOfWinners uint64, winAmount *big.Int, predictionIDs []uint64) error {
	return g.write(ctx, "completePool",
		new(big.Int).SetUint64(poolID), big.NewInt(snapshotPrice),
		new(big.Int).SetUint64(noOfWinners), orZero(winAmount), bigIDs(predictionIDs))
}

// write simulates the call, sends it as a dynamic-fee transaction and waits
// for a successful receipt.
func (g *Gateway) write(ctx context.Context, method string, args ...any) error {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("chain: pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{From: g.signer.Address(), To: &g.contract, Data: data}

	if _, err := g.backend.CallContract(ctx, msg, nil); err != nil {
		return g.writeErr(ctx, method, fmt.Errorf("simulate: %w", err))
	}

	tx, err := g.send(ctx, msg)
	if err != nil {
		return g.writeErr(ctx, method, err)
	}

	g.logger.InfoContext(ctx, "transaction sent",
		slog.String("method", method),
		slog.String("tx", tx.Hash().Hex()),
	)

	receipt, err := g.waitReceipt(ctx, tx.Hash())
	if err != nil {
		return fmt.Errorf("chain: %s on %s: %w", method, g.cfg.Chain, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("chain: %s on %s reverted in tx %s", method, g.cfg.Chain, tx.Hash().Hex())
	}

	g.logger.InfoContext(ctx, "transaction confirmed",
		slog.String("method", method),
		slog.String("tx", tx.Hash().Hex()),
		slog.Uint64("block", receipt.BlockNumber.Uint64()),
		slog.Uint64("gas_used", receipt.GasUsed),
	)
	return nil
}

func (g *Gateway) send(ctx context.Context, msg ethereum.CallMsg) (*types.Transaction, error) {
	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	gas, err := g.backend.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	nonce, err := g.backend.PendingNonceAt(ctx, msg.From)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	tip, err := g.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas tip: %w", err)
	}
	head, err := g.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}

	// feeCap = 2*baseFee + tip keeps the tx valid across several full blocks.
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   g.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas + gas/5,
		To:        msg.To,
		Data:      msg.Data,
	})
	signed, err := g.signer.SignTx(tx, g.chainID)
	if err != nil {
		return nil, err
	}
	if err := g.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	return signed, nil
}

func (g *Gateway) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(g.cfg.ConfirmPoll)
	defer ticker.Stop()

	for {
		receipt, err := g.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// writeErr maps a failed write to a returned error. A superseded transaction
// waits out the backoff and reports domain.ErrTxSuperseded so the next job
// attempt re-reads chain state and carries on.
func (g *Gateway) writeErr(ctx context.Context, method string, err error) error {
	if !isSuperseded(err) {
		return fmt.Errorf("chain: %s on %s: %w", method, g.cfg.Chain, err)
	}

	g.logger.WarnContext(ctx, "transaction superseded, backing off",
		slog.String("method", method),
		slog.Duration("backoff", g.cfg.SupersededBackoff),
		slog.String("error", err.Error()),
	)
	if g.cfg.SupersededBackoff > 0 {
		timer := time.NewTimer(g.cfg.SupersededBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("chain: %s on %s: %w", method, g.cfg.Chain, domain.ErrTxSuperseded)
}

var supersededMarkers = []string{
	"higher priority",
	"replacement transaction underpriced",
	"nonce too low",
	"already known",
}

func isSuperseded(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range supersededMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Compile-time interface check.
var _ domain.ChainGateway = (*Gateway)(nil)
