package app

import (
	"fmt"

	"github.com/apetweet-labs/swap_layer/internal/app/services/swaps"
	"github.com/apetweet-labs/swap_layer/internal/app/services/tweets"
	"github.com/apetweet-labs/swap_layer/internal/app/services/wallets"
	"github.com/apetweet-labs/swap_layer/internal/app/storage"
	"github.com/apetweet-labs/swap_layer/internal/app/storage/memory"
	"github.com/apetweet-labs/swap_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. A nil store defaults to the
// in-memory implementation.
type Stores struct {
	Wallets storage.WalletStore
}

// Dependencies holds the external collaborators the services run against.
type Dependencies struct {
	WalletProvider wallets.Provider
	Chain          swaps.ChainReader
	TxSender       swaps.TxSender
	Extractor      tweets.Extractor
	SwapOptions    swaps.Options
	DemoAmountWei  string
}

// Application ties the domain services together.
type Application struct {
	log *logger.Logger

	Wallets *wallets.Service
	Tweets  *tweets.Service
	Swaps   *swaps.Service
}

// New builds a fully initialised application with the provided stores and
// collaborators.
func New(stores Stores, deps Dependencies, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	if stores.Wallets == nil {
		stores.Wallets = memory.New()
	}
	if deps.WalletProvider == nil {
		return nil, fmt.Errorf("wallet provider is required")
	}
	if deps.Chain == nil {
		return nil, fmt.Errorf("chain reader is required")
	}
	if deps.TxSender == nil {
		return nil, fmt.Errorf("transaction sender is required")
	}
	if deps.Extractor == nil {
		return nil, fmt.Errorf("tweet extractor is required")
	}

	walletService := wallets.New(stores.Wallets, deps.WalletProvider, log)
	tweetService := tweets.New(deps.Extractor, deps.DemoAmountWei, log)
	swapService := swaps.New(stores.Wallets, deps.Chain, deps.TxSender, deps.SwapOptions, log)

	return &Application{
		log:     log,
		Wallets: walletService,
		Tweets:  tweetService,
		Swaps:   swapService,
	}, nil
}
