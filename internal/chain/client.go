// Package chain provides read access to the Uniswap V3 deployment and
// calldata builders for the swap path. All state-changing transactions are
// signed and broadcast by the custody service; this package only simulates,
// encodes and watches.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/apetweet-labs/swap_layer/internal/app/domain/swap"
	"github.com/apetweet-labs/swap_layer/pkg/logger"
)

var (
	// ErrReceiptTimeout is returned when a transaction is not mined within
	// the configured receipt window.
	ErrReceiptTimeout = errors.New("chain: timed out waiting for receipt")

	// ErrTxReverted is returned when a mined transaction has a failed status.
	ErrTxReverted = errors.New("chain: transaction reverted")
)

var (
	erc20Parsed   = mustABI(erc20ABI)
	factoryParsed = mustABI(factoryABI)
	poolParsed    = mustABI(poolABI)
	quoterParsed  = mustABI(quoterV2ABI)
	routerParsed  = mustABI(routerABI)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("chain: invalid ABI: %v", err))
	}
	return parsed
}

// Backend is the subset of the Ethereum JSON-RPC client the chain layer
// needs. *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config carries the deployment addresses and receipt polling knobs.
type Config struct {
	Factory        common.Address
	Quoter         common.Address
	Router         common.Address
	WETH           common.Address
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
}

// Client reads pool state and quotes through an RPC backend.
type Client struct {
	backend Backend
	cfg     Config
	log     *logger.Logger
}

func NewClient(backend Backend, cfg Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewDefault("chain")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	return &Client{backend: backend, cfg: cfg, log: log}
}

// Router returns the swap router address transactions are sent to.
func (c *Client) Router() common.Address { return c.cfg.Router }

// WETH returns the wrapped native token address used as the input leg.
func (c *Client) WETH() common.Address { return c.cfg.WETH }

// GetPool asks the factory for the pool at the given fee tier. The zero
// address means no pool exists for that pair and tier.
func (c *Client) GetPool(ctx context.Context, tokenA, tokenB common.Address, fee swap.FeeTier) (common.Address, error) {
	data, err := factoryParsed.Pack("getPool", tokenA, tokenB, big.NewInt(int64(fee)))
	if err != nil {
		return common.Address{}, fmt.Errorf("pack getPool: %w", err)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.cfg.Factory, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("call getPool fee=%d: %w", fee, err)
	}
	vals, err := factoryParsed.Unpack("getPool", out)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack getPool: %w", err)
	}
	return vals[0].(common.Address), nil
}

// PoolState reads slot0 and liquidity from a pool. The two calls are
// independent and run concurrently.
func (c *Client) PoolState(ctx context.Context, pool common.Address) (swap.PoolState, error) {
	var state swap.PoolState
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := poolParsed.Pack("slot0")
		if err != nil {
			return fmt.Errorf("pack slot0: %w", err)
		}
		out, err := c.backend.CallContract(gctx, ethereum.CallMsg{To: &pool, Data: data}, nil)
		if err != nil {
			return fmt.Errorf("call slot0: %w", err)
		}
		vals, err := poolParsed.Unpack("slot0", out)
		if err != nil {
			return fmt.Errorf("unpack slot0: %w", err)
		}
		state.SqrtPriceX96 = vals[0].(*big.Int)
		state.Tick = int32(vals[1].(*big.Int).Int64())
		return nil
	})
	g.Go(func() error {
		data, err := poolParsed.Pack("liquidity")
		if err != nil {
			return fmt.Errorf("pack liquidity: %w", err)
		}
		out, err := c.backend.CallContract(gctx, ethereum.CallMsg{To: &pool, Data: data}, nil)
		if err != nil {
			return fmt.Errorf("call liquidity: %w", err)
		}
		vals, err := poolParsed.Unpack("liquidity", out)
		if err != nil {
			return fmt.Errorf("unpack liquidity: %w", err)
		}
		state.Liquidity = vals[0].(*big.Int)
		return nil
	})
	if err := g.Wait(); err != nil {
		return swap.PoolState{}, err
	}
	return state, nil
}

type quoteParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

// QuoteExactInputSingle simulates the swap through QuoterV2 and returns the
// expected output amount.
func (c *Client) QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee swap.FeeTier, amountIn *big.Int) (*big.Int, error) {
	data, err := quoterParsed.Pack("quoteExactInputSingle", quoteParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(fee)),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("pack quoteExactInputSingle: %w", err)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.cfg.Quoter, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call quoteExactInputSingle: %w", err)
	}
	vals, err := quoterParsed.Unpack("quoteExactInputSingle", out)
	if err != nil {
		return nil, fmt.Errorf("unpack quoteExactInputSingle: %w", err)
	}
	return vals[0].(*big.Int), nil
}

// WaitForReceipt polls until the transaction is mined, the receipt window
// elapses, or the caller's context is done. A mined transaction with a
// failed status is reported as ErrTxReverted.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: tx %s", ErrTxReverted, txHash.Hex())
			}
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
			// not mined yet, keep polling
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			return nil, fmt.Errorf("%w: tx %s", ErrReceiptTimeout, txHash.Hex())
		default:
			c.log.WithError(err).WithField("tx", txHash.Hex()).Warnf("receipt lookup failed, retrying")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: tx %s", ErrReceiptTimeout, txHash.Hex())
		case <-ticker.C:
		}
	}
}

// ApproveCalldata encodes an ERC-20 approve for the given spender.
func ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20Parsed.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("pack approve: %w", err)
	}
	return data, nil
}

// SwapParams are the exactInputSingle arguments in router order.
type SwapParams struct {
	TokenIn          common.Address
	TokenOut         common.Address
	Fee              swap.FeeTier
	Recipient        common.Address
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
}

// ExactInputSingleCalldata encodes a router exactInputSingle call.
func ExactInputSingleCalldata(p SwapParams) ([]byte, error) {
	data, err := routerParsed.Pack("exactInputSingle", struct {
		TokenIn           common.Address
		TokenOut          common.Address
		Fee               *big.Int
		Recipient         common.Address
		AmountIn          *big.Int
		AmountOutMinimum  *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           p.TokenIn,
		TokenOut:          p.TokenOut,
		Fee:               big.NewInt(int64(p.Fee)),
		Recipient:         p.Recipient,
		AmountIn:          p.AmountIn,
		AmountOutMinimum:  p.AmountOutMinimum,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return nil, fmt.Errorf("pack exactInputSingle: %w", err)
	}
	return data, nil
}
