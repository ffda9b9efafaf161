// Package custody provides a client for the wallet custody provider. The
// provider keeps the private keys; this service only asks it to create
// wallets and to sign and broadcast prepared transactions.
package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"
)

// Client is a client for the custody provider's REST API.
type Client struct {
	baseURL    string
	appID      string
	appSecret  string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL   string
	AppID     string
	AppSecret string
	Timeout   time.Duration
}

// New creates a new custody client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:   cfg.BaseURL,
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Wallet is a custodial wallet held by the provider.
type Wallet struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// TxRequest is a transaction to be signed and broadcast by the provider on
// behalf of a wallet. Data and Value are hex-encoded.
type TxRequest struct {
	To      string   `json:"to"`
	Data    string   `json:"data"`
	Value   *big.Int `json:"-"`
	ChainID int64    `json:"-"`
}

type createWalletRequest struct {
	ChainType string `json:"chain_type"`
}

type rpcRequest struct {
	Method string    `json:"method"`
	Params rpcParams `json:"params"`
}

type rpcParams struct {
	Transaction rpcTransaction `json:"transaction"`
}

type rpcTransaction struct {
	To      string `json:"to"`
	Data    string `json:"data,omitempty"`
	Value   string `json:"value,omitempty"`
	ChainID int64  `json:"chain_id"`
}

type rpcResponse struct {
	Data struct {
		Hash string `json:"hash"`
	} `json:"data"`
}

// CreateWallet provisions a new Ethereum wallet.
func (c *Client) CreateWallet(ctx context.Context) (*Wallet, error) {
	var wallet Wallet
	if err := c.do(ctx, http.MethodPost, "/v1/wallets", createWalletRequest{ChainType: "ethereum"}, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// GetWallet fetches a wallet by its provider ID.
func (c *Client) GetWallet(ctx context.Context, walletID string) (*Wallet, error) {
	var wallet Wallet
	if err := c.do(ctx, http.MethodGet, "/v1/wallets/"+walletID, nil, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// SendTransaction asks the provider to sign and broadcast the transaction
// from the given wallet and returns the transaction hash.
func (c *Client) SendTransaction(ctx context.Context, walletID string, tx TxRequest) (string, error) {
	req := rpcRequest{
		Method: "eth_sendTransaction",
		Params: rpcParams{
			Transaction: rpcTransaction{
				To:      tx.To,
				Data:    tx.Data,
				ChainID: tx.ChainID,
			},
		},
	}
	if tx.Value != nil && tx.Value.Sign() > 0 {
		req.Params.Transaction.Value = "0x" + tx.Value.Text(16)
	}

	var resp rpcResponse
	if err := c.do(ctx, http.MethodPost, "/v1/wallets/"+walletID+"/rpc", req, &resp); err != nil {
		return "", err
	}
	if resp.Data.Hash == "" {
		return "", fmt.Errorf("custody response missing transaction hash")
	}
	return resp.Data.Hash, nil
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, out interface{}) error {
	var body io.Reader
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	httpReq.SetBasicAuth(c.appID, c.appSecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("custody request failed: %s - %s", resp.Status, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
