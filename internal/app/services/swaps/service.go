// Package swaps orchestrates a swap attempt end to end: validate the
// request, resolve a pool, quote the output, then approve and submit
// through the custody service.
package swaps

import (
	"context"
	"errors"
	"math/big"
	"regexp"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/apetweet-labs/swap_layer/internal/app/domain/swap"
	"github.com/apetweet-labs/swap_layer/internal/app/storage"
	"github.com/apetweet-labs/swap_layer/internal/chain"
	"github.com/apetweet-labs/swap_layer/internal/custody"
	svcerrors "github.com/apetweet-labs/swap_layer/internal/errors"
	"github.com/apetweet-labs/swap_layer/pkg/logger"
)

// ChainReader reads pools, quotes and receipts. *chain.Client satisfies it.
type ChainReader interface {
	GetPool(ctx context.Context, tokenA, tokenB common.Address, fee swap.FeeTier) (common.Address, error)
	PoolState(ctx context.Context, pool common.Address) (swap.PoolState, error)
	QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee swap.FeeTier, amountIn *big.Int) (*big.Int, error)
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Router() common.Address
	WETH() common.Address
}

// TxSender signs and broadcasts transactions from a custodial wallet.
// *custody.Client satisfies it.
type TxSender interface {
	SendTransaction(ctx context.Context, walletID string, tx custody.TxRequest) (string, error)
}

// Options tune swap execution.
type Options struct {
	ChainID           int64
	SlippageBps       int
	ExecutionDeadline time.Duration
}

// Service implements swap execution.
type Service struct {
	store  storage.WalletStore
	reader ChainReader
	sender TxSender
	opts   Options
	log    *logger.Logger
}

// New creates a swap service.
func New(store storage.WalletStore, reader ChainReader, sender TxSender, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("swaps")
	}
	if opts.SlippageBps <= 0 {
		opts.SlippageBps = 50
	}
	if opts.ExecutionDeadline <= 0 {
		opts.ExecutionDeadline = 20 * time.Minute
	}
	return &Service{store: store, reader: reader, sender: sender, opts: opts, log: log}
}

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// validate rejects a malformed request before any network traffic happens.
func validate(info swap.TokenInfo) (amountIn *big.Int, tokenOut common.Address, err error) {
	if info.FromToken.Symbol != "ETH" && info.FromToken.Symbol != "WETH" {
		return nil, common.Address{}, svcerrors.Validation("fromToken must be ETH")
	}
	if info.FromToken.Amount == "" {
		return nil, common.Address{}, svcerrors.Validation("fromToken amount is required")
	}
	amountIn, ok := new(big.Int).SetString(info.FromToken.Amount, 10)
	if !ok {
		return nil, common.Address{}, svcerrors.Validation("fromToken amount must be a decimal wei string")
	}
	if amountIn.Sign() <= 0 {
		return nil, common.Address{}, svcerrors.Validation("fromToken amount must be positive")
	}
	if !addressPattern.MatchString(info.ToToken.Address) {
		return nil, common.Address{}, svcerrors.Validation("toToken address is not a valid contract address")
	}
	tokenOut = common.HexToAddress(info.ToToken.Address)
	if tokenOut == (common.Address{}) {
		return nil, common.Address{}, svcerrors.Validation("toToken address must not be the zero address")
	}
	return amountIn, tokenOut, nil
}

// ResolvePool probes the factory across all fee tiers and returns the
// lowest-fee pool that exists for WETH/tokenOut.
func (s *Service) ResolvePool(ctx context.Context, tokenOut common.Address) (swap.PoolHandle, error) {
	weth := s.reader.WETH()
	for _, fee := range swap.FeeTiers {
		addr, err := s.reader.GetPool(ctx, weth, tokenOut, fee)
		if err != nil {
			return swap.PoolHandle{}, svcerrors.ChainRead("resolve pool", err)
		}
		if addr != (common.Address{}) {
			return swap.PoolHandle{Address: addr, Fee: fee}, nil
		}
	}
	return swap.PoolHandle{}, svcerrors.NotFound("no liquidity pool exists for this token")
}

// QuoteSwap resolves the pool, snapshots its state and simulates the swap.
func (s *Service) QuoteSwap(ctx context.Context, tokenOut common.Address, amountIn *big.Int) (swap.Quote, error) {
	pool, err := s.ResolvePool(ctx, tokenOut)
	if err != nil {
		return swap.Quote{}, err
	}

	state, err := s.reader.PoolState(ctx, pool.Address)
	if err != nil {
		return swap.Quote{}, svcerrors.ChainRead("read pool state", err)
	}
	if state.Liquidity == nil || state.Liquidity.Sign() == 0 {
		return swap.Quote{}, svcerrors.QuoteFailed("pool has no active liquidity", nil)
	}

	s.log.WithFields(map[string]interface{}{
		"pool":           pool.Address.Hex(),
		"fee":            pool.Fee.String(),
		"sqrt_price_x96": state.SqrtPriceX96.String(),
		"liquidity":      state.Liquidity.String(),
		"tick":           state.Tick,
	}).Debugf("resolved pool")

	amountOut, err := s.reader.QuoteExactInputSingle(ctx, s.reader.WETH(), tokenOut, pool.Fee, amountIn)
	if err != nil {
		return swap.Quote{}, svcerrors.QuoteFailed("quote simulation reverted", err)
	}
	if amountOut.Sign() == 0 {
		return swap.Quote{}, svcerrors.QuoteFailed("quote returned zero output", nil)
	}

	return swap.Quote{
		Pool:      pool,
		TokenIn:   s.reader.WETH(),
		TokenOut:  tokenOut,
		AmountIn:  amountIn,
		AmountOut: amountOut,
	}, nil
}

// Execute runs the full swap pipeline for the authenticated user's wallet
// and returns the hash of the submitted swap transaction. The whole attempt
// is bounded by the configured execution deadline.
func (s *Service) Execute(ctx context.Context, userID string, info swap.TokenInfo) (swap.Result, error) {
	amountIn, tokenOut, err := validate(info)
	if err != nil {
		return swap.Result{}, err
	}

	w, err := s.store.GetWalletByUserID(ctx, userID)
	if err == storage.ErrNotFound {
		return swap.Result{}, svcerrors.NotFound("wallet not found")
	}
	if err != nil {
		return swap.Result{}, svcerrors.Internal("look up wallet", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.ExecutionDeadline)
	defer cancel()

	quote, err := s.QuoteSwap(ctx, tokenOut, amountIn)
	if err != nil {
		return swap.Result{}, err
	}
	minOut := quote.MinimumOut(s.opts.SlippageBps)

	log := s.log.WithFields(map[string]interface{}{
		"user_id":    userID,
		"wallet":     w.Address,
		"token_out":  tokenOut.Hex(),
		"amount_in":  amountIn.String(),
		"amount_out": quote.AmountOut.String(),
		"min_out":    minOut.String(),
		"fee":        quote.Pool.Fee.String(),
	})

	if err := s.approve(ctx, w.ID, amountIn); err != nil {
		return swap.Result{}, err
	}
	log.Infof("approval confirmed, submitting swap")

	txHash, err := s.submitSwap(ctx, w.ID, common.HexToAddress(w.Address), quote, minOut)
	if err != nil {
		return swap.Result{}, err
	}
	log.WithField("tx_hash", txHash).Infof("swap submitted")

	return swap.Result{TxHash: txHash}, nil
}

// approve grants the router an allowance over the input token and waits for
// the approval to be mined before the swap is submitted.
func (s *Service) approve(ctx context.Context, walletID string, amountIn *big.Int) error {
	calldata, err := chain.ApproveCalldata(s.reader.Router(), amountIn)
	if err != nil {
		return svcerrors.SwapExecution("approve", "encode approval", err)
	}

	txHash, err := s.sender.SendTransaction(ctx, walletID, custody.TxRequest{
		To:      s.reader.WETH().Hex(),
		Data:    hexutil.Encode(calldata),
		ChainID: s.opts.ChainID,
	})
	if err != nil {
		return svcerrors.SwapExecution("approve", "submit approval", err)
	}

	if _, err := s.reader.WaitForReceipt(ctx, common.HexToHash(txHash)); err != nil {
		if errors.Is(err, chain.ErrReceiptTimeout) {
			return svcerrors.Timeout("approval not mined in time", err)
		}
		return svcerrors.SwapExecution("approve", "approval failed on chain", err)
	}
	return nil
}

// submitSwap encodes and submits exactInputSingle. The hash is returned as
// soon as the transaction is accepted; only the approval is awaited, the
// swap itself confirms (or reverts) after the response.
func (s *Service) submitSwap(ctx context.Context, walletID string, recipient common.Address, quote swap.Quote, minOut *big.Int) (string, error) {
	calldata, err := chain.ExactInputSingleCalldata(chain.SwapParams{
		TokenIn:          quote.TokenIn,
		TokenOut:         quote.TokenOut,
		Fee:              quote.Pool.Fee,
		Recipient:        recipient,
		AmountIn:         quote.AmountIn,
		AmountOutMinimum: minOut,
	})
	if err != nil {
		return "", svcerrors.SwapExecution("swap", "encode swap", err)
	}

	txHash, err := s.sender.SendTransaction(ctx, walletID, custody.TxRequest{
		To:      s.reader.Router().Hex(),
		Data:    hexutil.Encode(calldata),
		ChainID: s.opts.ChainID,
	})
	if err != nil {
		return "", svcerrors.SwapExecution("swap", "submit swap", err)
	}
	return txHash, nil
}

