package swaps

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/apetweet-labs/swap_layer/internal/app/domain/swap"
	"github.com/apetweet-labs/swap_layer/internal/app/domain/wallet"
	"github.com/apetweet-labs/swap_layer/internal/app/storage/memory"
	"github.com/apetweet-labs/swap_layer/internal/chain"
	"github.com/apetweet-labs/swap_layer/internal/custody"
	svcerrors "github.com/apetweet-labs/swap_layer/internal/errors"
)

var (
	routerAddr = common.HexToAddress("0x2626664c2603336E57B271c5C0b26F421741e481")
	wethAddr   = common.HexToAddress("0x4200000000000000000000000000000000000006")
	tokenAddr  = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	poolAddr   = common.HexToAddress("0xd0b53D9277642d899DF5C87A3966A349A798F224")

	walletAddr = "0x1111111111111111111111111111111111111111"
)

type fakeReader struct {
	mu    sync.Mutex
	order *[]string

	pools        map[swap.FeeTier]common.Address
	getPoolErr   error
	state        swap.PoolState
	stateErr     error
	quoteOut     *big.Int
	quoteErr     error
	receiptErr   error
	laterWaitErr error
	receiptWaits int
}

func (f *fakeReader) record(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.order = append(*f.order, step)
}

func (f *fakeReader) GetPool(_ context.Context, _, _ common.Address, fee swap.FeeTier) (common.Address, error) {
	f.record(fmt.Sprintf("getPool:%d", fee))
	if f.getPoolErr != nil {
		return common.Address{}, f.getPoolErr
	}
	return f.pools[fee], nil
}

func (f *fakeReader) PoolState(context.Context, common.Address) (swap.PoolState, error) {
	f.record("poolState")
	return f.state, f.stateErr
}

func (f *fakeReader) QuoteExactInputSingle(_ context.Context, _, _ common.Address, _ swap.FeeTier, _ *big.Int) (*big.Int, error) {
	f.record("quote")
	return f.quoteOut, f.quoteErr
}

func (f *fakeReader) WaitForReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.record("wait:" + txHash.Hex()[:10])
	f.mu.Lock()
	f.receiptWaits++
	waits := f.receiptWaits
	f.mu.Unlock()
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	if waits > 1 && f.laterWaitErr != nil {
		return nil, f.laterWaitErr
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: txHash}, nil
}

func (f *fakeReader) Router() common.Address { return routerAddr }
func (f *fakeReader) WETH() common.Address   { return wethAddr }

type fakeSender struct {
	mu      sync.Mutex
	order   *[]string
	sent    []custody.TxRequest
	errOn   int
	callErr error
}

func (f *fakeSender) SendTransaction(_ context.Context, walletID string, tx custody.TxRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.order = append(*f.order, "send:"+tx.To)
	f.sent = append(f.sent, tx)
	if f.callErr != nil && len(f.sent) == f.errOn {
		return "", f.callErr
	}
	return fmt.Sprintf("0x%064x", len(f.sent)), nil
}

func healthyReader(order *[]string) *fakeReader {
	return &fakeReader{
		order: order,
		pools: map[swap.FeeTier]common.Address{swap.FeeLow: poolAddr},
		state: swap.PoolState{
			SqrtPriceX96: big.NewInt(1),
			Liquidity:    big.NewInt(1_000_000),
			Tick:         100,
		},
		quoteOut: big.NewInt(1_000_000),
	}
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	_, err := store.CreateWallet(context.Background(), wallet.UserWallet{
		ID:      "wallet-1",
		UserID:  "user-1",
		Address: walletAddr,
	})
	if err != nil {
		t.Fatalf("seed wallet: %v", err)
	}
	return store
}

func request(amount string) swap.TokenInfo {
	return swap.TokenInfo{
		FromToken: swap.TokenAmount{Symbol: "ETH", Amount: amount},
		ToToken:   swap.TokenAmount{Symbol: "TOKEN", Address: tokenAddr.Hex()},
	}
}

func newService(t *testing.T, reader ChainReader, sender TxSender) *Service {
	t.Helper()
	return New(seededStore(t), reader, sender, Options{
		ChainID:           8453,
		SlippageBps:       50,
		ExecutionDeadline: time.Minute,
	}, nil)
}

func TestExecuteHappyPath(t *testing.T) {
	var order []string
	reader := healthyReader(&order)
	sender := &fakeSender{order: &order}
	svc := newService(t, reader, sender)

	result, err := svc.Execute(context.Background(), "user-1", request("1000000000000000"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(sender.sent) != 2 {
		t.Fatalf("sent %d transactions, want approve + swap", len(sender.sent))
	}
	if sender.sent[0].To != wethAddr.Hex() {
		t.Fatalf("approval sent to %s, want WETH", sender.sent[0].To)
	}
	if sender.sent[1].To != routerAddr.Hex() {
		t.Fatalf("swap sent to %s, want router", sender.sent[1].To)
	}
	if result.TxHash != fmt.Sprintf("0x%064x", 2) {
		t.Fatalf("result hash = %s, want the swap hash", result.TxHash)
	}

	// validation and wallet lookup come first, then reads, then approve
	// confirmed before the swap leaves; the swap receipt is not awaited
	want := []string{
		"getPool:100", "getPool:500",
		"poolState", "quote",
		"send:" + wethAddr.Hex(), "wait:" + fmt.Sprintf("0x%064x", 1)[:10],
		"send:" + routerAddr.Hex(),
	}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("step %d = %s, want %s (full order %v)", i, order[i], want[i], order)
		}
	}
}

func TestExecuteAppliesSlippageMinimum(t *testing.T) {
	var order []string
	reader := healthyReader(&order)
	sender := &fakeSender{order: &order}
	svc := newService(t, reader, sender)

	if _, err := svc.Execute(context.Background(), "user-1", request("1000000000000000")); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	wantCalldata, err := chain.ExactInputSingleCalldata(chain.SwapParams{
		TokenIn:          wethAddr,
		TokenOut:         tokenAddr,
		Fee:              swap.FeeLow,
		Recipient:        common.HexToAddress(walletAddr),
		AmountIn:         big.NewInt(1_000_000_000_000_000),
		AmountOutMinimum: big.NewInt(995_000), // 1,000,000 less 50 bps
	})
	if err != nil {
		t.Fatalf("encode expected calldata: %v", err)
	}
	if sender.sent[1].Data != hexutil.Encode(wantCalldata) {
		t.Fatal("swap calldata does not carry the slippage-adjusted minimum output")
	}
}

func TestExecuteValidationShortCircuits(t *testing.T) {
	cases := map[string]swap.TokenInfo{
		"wrong input symbol": {
			FromToken: swap.TokenAmount{Symbol: "USDC", Amount: "1000"},
			ToToken:   swap.TokenAmount{Address: tokenAddr.Hex()},
		},
		"empty amount":        request(""),
		"non-numeric amount":  request("one million"),
		"fractional amount":   request("1.5"),
		"zero amount":         request("0"),
		"negative amount":     request("-5"),
		"malformed address": {
			FromToken: swap.TokenAmount{Symbol: "ETH", Amount: "1000"},
			ToToken:   swap.TokenAmount{Address: "0x1234"},
		},
		"zero address": {
			FromToken: swap.TokenAmount{Symbol: "ETH", Amount: "1000"},
			ToToken:   swap.TokenAmount{Address: "0x0000000000000000000000000000000000000000"},
		},
	}

	for name, info := range cases {
		t.Run(name, func(t *testing.T) {
			var order []string
			reader := healthyReader(&order)
			sender := &fakeSender{order: &order}
			svc := newService(t, reader, sender)

			_, err := svc.Execute(context.Background(), "user-1", info)
			svcErr := svcerrors.GetServiceError(err)
			if svcErr == nil || svcErr.Code != svcerrors.CodeValidation {
				t.Fatalf("expected VALIDATION, got %v", err)
			}
			if len(order) != 0 {
				t.Fatalf("invalid request still touched the chain: %v", order)
			}
		})
	}
}

func TestExecuteNoWallet(t *testing.T) {
	var order []string
	reader := healthyReader(&order)
	sender := &fakeSender{order: &order}
	svc := New(memory.New(), reader, sender, Options{ChainID: 8453}, nil)

	_, err := svc.Execute(context.Background(), "user-unknown", request("1000"))
	svcErr := svcerrors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != svcerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if len(order) != 0 {
		t.Fatalf("missing wallet still touched the chain: %v", order)
	}
}

func TestResolvePoolLowestFeeWins(t *testing.T) {
	var order []string
	reader := healthyReader(&order)
	reader.pools = map[swap.FeeTier]common.Address{
		swap.FeeMedium: common.HexToAddress("0x3333333333333333333333333333333333333333"),
		swap.FeeHigh:   common.HexToAddress("0x4444444444444444444444444444444444444444"),
	}
	svc := newService(t, reader, &fakeSender{order: &order})

	handle, err := svc.ResolvePool(context.Background(), tokenAddr)
	if err != nil {
		t.Fatalf("ResolvePool: %v", err)
	}
	if handle.Fee != swap.FeeMedium {
		t.Fatalf("fee = %d, want the lowest existing tier %d", handle.Fee, swap.FeeMedium)
	}
	if handle.Address != reader.pools[swap.FeeMedium] {
		t.Fatalf("pool = %s, want the 0.3%% pool", handle.Address.Hex())
	}
}

func TestResolvePoolNoneExists(t *testing.T) {
	var order []string
	reader := healthyReader(&order)
	reader.pools = nil
	svc := newService(t, reader, &fakeSender{order: &order})

	_, err := svc.ResolvePool(context.Background(), tokenAddr)
	svcErr := svcerrors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != svcerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	// all four tiers probed in ascending fee order
	want := []string{"getPool:100", "getPool:500", "getPool:3000", "getPool:10000"}
	if len(order) != len(want) {
		t.Fatalf("probes = %v, want %v", order, want)
	}
}

func TestQuoteSwapZeroLiquidity(t *testing.T) {
	var order []string
	reader := healthyReader(&order)
	reader.state.Liquidity = big.NewInt(0)
	svc := newService(t, reader, &fakeSender{order: &order})

	_, err := svc.QuoteSwap(context.Background(), tokenAddr, big.NewInt(1000))
	svcErr := svcerrors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != svcerrors.CodeQuote {
		t.Fatalf("expected QUOTE, got %v", err)
	}
}

func TestQuoteSwapSimulationReverts(t *testing.T) {
	var order []string
	reader := healthyReader(&order)
	reader.quoteErr = errors.New("execution reverted")
	svc := newService(t, reader, &fakeSender{order: &order})

	_, err := svc.QuoteSwap(context.Background(), tokenAddr, big.NewInt(1000))
	svcErr := svcerrors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != svcerrors.CodeQuote {
		t.Fatalf("expected QUOTE, got %v", err)
	}
}

func TestExecuteApprovalFailure(t *testing.T) {
	var order []string
	reader := healthyReader(&order)
	sender := &fakeSender{order: &order, errOn: 1, callErr: errors.New("custody rejected")}
	svc := newService(t, reader, sender)

	_, err := svc.Execute(context.Background(), "user-1", request("1000"))
	svcErr := svcerrors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != svcerrors.CodeSwapExecution {
		t.Fatalf("expected SWAP_EXECUTION, got %v", err)
	}
	if svcErr.Details["step"] != "approve" {
		t.Fatalf("step detail = %v, want approve", svcErr.Details["step"])
	}
	if len(sender.sent) != 1 {
		t.Fatalf("swap must not be submitted after a failed approval, sent %d", len(sender.sent))
	}
}

func TestExecuteApprovalReceiptTimeout(t *testing.T) {
	var order []string
	reader := healthyReader(&order)
	reader.receiptErr = fmt.Errorf("wrapped: %w", chain.ErrReceiptTimeout)
	sender := &fakeSender{order: &order}
	svc := newService(t, reader, sender)

	_, err := svc.Execute(context.Background(), "user-1", request("1000"))
	svcErr := svcerrors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != svcerrors.CodeTimeout {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("swap must not be submitted after an unconfirmed approval, sent %d", len(sender.sent))
	}
}

func TestExecuteSwapRevert(t *testing.T) {
	var order []string
	reader := healthyReader(&order)
	sender := &fakeSender{order: &order, errOn: 2, callErr: errors.New("execution reverted")}
	svc := newService(t, reader, sender)

	_, err := svc.Execute(context.Background(), "user-1", request("1000"))
	svcErr := svcerrors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != svcerrors.CodeSwapExecution {
		t.Fatalf("expected SWAP_EXECUTION, got %v", err)
	}
	if svcErr.Details["step"] != "swap" {
		t.Fatalf("step detail = %v, want swap", svcErr.Details["step"])
	}
}

func TestExecuteConcurrentUsers(t *testing.T) {
	var order []string
	reader := healthyReader(&order)
	sender := &fakeSender{order: &order}
	store := seededStore(t)
	if _, err := store.CreateWallet(context.Background(), wallet.UserWallet{
		ID:      "wallet-2",
		UserID:  "user-2",
		Address: "0x2222222222222222222222222222222222222222",
	}); err != nil {
		t.Fatalf("seed second wallet: %v", err)
	}
	svc := New(store, reader, sender, Options{ChainID: 8453}, nil)

	// two users swap at once; ordering within each wallet is the custody
	// provider's concern, the service must not serialize across users
	var g errgroup.Group
	for _, user := range []string{"user-1", "user-2"} {
		user := user
		g.Go(func() error {
			_, err := svc.Execute(context.Background(), user, request("1000000000000"))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent Execute: %v", err)
	}
	if len(sender.sent) != 4 {
		t.Fatalf("sent %d transactions, want an approve and a swap per user", len(sender.sent))
	}
}

func TestExecuteReturnsSwapHashWithoutAwaitingConfirmation(t *testing.T) {
	var order []string
	reader := healthyReader(&order)
	reader.laterWaitErr = fmt.Errorf("wrapped: %w", chain.ErrReceiptTimeout)
	sender := &fakeSender{order: &order}
	svc := newService(t, reader, sender)

	result, err := svc.Execute(context.Background(), "user-1", request("1000000000000"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.TxHash != fmt.Sprintf("0x%064x", 2) {
		t.Fatalf("result hash = %s, want the swap hash", result.TxHash)
	}
	if reader.receiptWaits != 1 {
		t.Fatalf("waited for %d receipts, want only the approval's", reader.receiptWaits)
	}
}
