// Package tweets extracts swap targets from tweet text.
package tweets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	svcerrors "github.com/apetweet-labs/swap_layer/internal/errors"
	"github.com/apetweet-labs/swap_layer/pkg/logger"
)

// Extractor finds a token contract address in tweet text. An empty address
// with a nil error means the text names no token.
type Extractor interface {
	Extract(ctx context.Context, tweet string) (string, error)
}

// ParseResult is the outcome of parsing a tweet.
type ParseResult struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// Service parses tweets into swap targets. The spend amount is a fixed
// demo-sized constant, not derived from the text.
type Service struct {
	extractor Extractor
	amountWei string
	log       *logger.Logger
}

// New creates a tweet parsing service.
func New(extractor Extractor, amountWei string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("tweets")
	}
	return &Service{extractor: extractor, amountWei: amountWei, log: log}
}

// Parse extracts the token address from the tweet and pairs it with the
// configured spend amount.
func (s *Service) Parse(ctx context.Context, tweet string) (ParseResult, error) {
	if strings.TrimSpace(tweet) == "" {
		return ParseResult{}, svcerrors.Validation("tweet is required")
	}

	address, err := s.extractor.Extract(ctx, tweet)
	if err != nil {
		return ParseResult{}, svcerrors.Internal("extract token address", err)
	}
	if address == "" {
		return ParseResult{}, svcerrors.NotFound("no token address found in tweet")
	}

	return ParseResult{Address: address, Amount: s.amountWei}, nil
}

// StubExtractor always returns a fixed token address. It is the default
// strategy for demo deployments.
type StubExtractor struct {
	Address string
}

func (s StubExtractor) Extract(context.Context, string) (string, error) {
	return s.Address, nil
}

var addressPattern = regexp.MustCompile(`0x[0-9a-fA-F]{40}`)

// RegexExtractor returns the first hex contract address appearing literally
// in the tweet.
type RegexExtractor struct{}

func (RegexExtractor) Extract(_ context.Context, tweet string) (string, error) {
	return addressPattern.FindString(tweet), nil
}

const extractorSystemPrompt = "You extract cryptocurrency token contract addresses from tweets. " +
	"Respond with JSON of the form {\"address\": \"0x...\"} containing the ERC-20 " +
	"contract address the tweet refers to, or {\"address\": null} if there is none."

// ModelExtractor asks a chat-completions endpoint to identify the token
// address, falling back to a literal address scan when the model finds none.
type ModelExtractor struct {
	Endpoint string
	APIKey   string
	Model    string

	httpClient *http.Client
	log        *logger.Logger
}

// NewModelExtractor creates a model-backed extractor.
func NewModelExtractor(endpoint, apiKey, model string, log *logger.Logger) *ModelExtractor {
	if log == nil {
		log = logger.NewDefault("tweets.extractor")
	}
	return &ModelExtractor{
		Endpoint:   endpoint,
		APIKey:     apiKey,
		Model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (m *ModelExtractor) Extract(ctx context.Context, tweet string) (string, error) {
	req := chatRequest{
		Model: m.Model,
		Messages: []chatMessage{
			{Role: "system", Content: extractorSystemPrompt},
			{Role: "user", Content: tweet},
		},
	}
	req.ResponseFormat.Type = "json_object"

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+m.APIKey)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model request failed: %s - %s", resp.Status, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}

	var answer struct {
		Address *string `json:"address"`
	}
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &answer); err != nil {
		m.log.WithError(err).Warnf("model answer was not JSON, scanning tweet text")
		return addressPattern.FindString(tweet), nil
	}
	if answer.Address == nil || *answer.Address == "" {
		return addressPattern.FindString(tweet), nil
	}
	return *answer.Address, nil
}
