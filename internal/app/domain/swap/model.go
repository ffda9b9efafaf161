// Package swap holds the transient request/response types of a swap attempt.
package swap

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FeeTier is a Uniswap V3 pool fee expressed in hundredths of a bip.
type FeeTier uint32

const (
	FeeLowest FeeTier = 100   // 0.01%
	FeeLow    FeeTier = 500   // 0.05%
	FeeMedium FeeTier = 3000  // 0.3%
	FeeHigh   FeeTier = 10000 // 1%
)

// FeeTiers lists all candidate tiers in probe order; the lowest-fee pool wins
// among co-existing pools.
var FeeTiers = []FeeTier{FeeLowest, FeeLow, FeeMedium, FeeHigh}

func (f FeeTier) String() string {
	switch f {
	case FeeLowest:
		return "0.01%"
	case FeeLow:
		return "0.05%"
	case FeeMedium:
		return "0.3%"
	case FeeHigh:
		return "1%"
	}
	return "unknown"
}

// TokenAmount is one leg of a swap request.
type TokenAmount struct {
	Symbol  string `json:"symbol"`
	Amount  string `json:"amount"`
	Address string `json:"address,omitempty"`
}

// TokenInfo is the request payload for a swap: sell fromToken, buy toToken.
type TokenInfo struct {
	FromToken TokenAmount `json:"fromToken"`
	ToToken   TokenAmount `json:"toToken"`
}

// PoolHandle identifies a resolved pool for one swap attempt. Never cached
// across requests.
type PoolHandle struct {
	Address common.Address
	Fee     FeeTier
}

// PoolState is a point-in-time snapshot of pool pricing state.
type PoolState struct {
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32
}

// Quote pairs an input amount with the simulated output. Valid only
// momentarily; consumed at submission time.
type Quote struct {
	Pool      PoolHandle
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
}

// MinimumOut applies a slippage tolerance in basis points to the quoted
// output.
func (q Quote) MinimumOut(toleranceBps int) *big.Int {
	if q.AmountOut == nil {
		return new(big.Int)
	}
	min := new(big.Int).Mul(q.AmountOut, big.NewInt(int64(10000-toleranceBps)))
	return min.Div(min, big.NewInt(10000))
}

// Result reports the submitted swap transaction.
type Result struct {
	TxHash string `json:"txHash"`
}
