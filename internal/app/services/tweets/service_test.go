package tweets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	svcerrors "github.com/apetweet-labs/swap_layer/internal/errors"
)

const usdc = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"

func TestParseStub(t *testing.T) {
	svc := New(StubExtractor{Address: usdc}, "10000000000000", nil)

	result, err := svc.Parse(context.Background(), "aping this one $TICKER")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.Address != usdc {
		t.Fatalf("address = %s, want %s", result.Address, usdc)
	}
	if result.Amount != "10000000000000" {
		t.Fatalf("amount = %s, want fixed demo amount", result.Amount)
	}
}

func TestParseEmptyTweet(t *testing.T) {
	svc := New(StubExtractor{Address: usdc}, "10000000000000", nil)

	for _, tweet := range []string{"", "   ", "\n\t"} {
		_, err := svc.Parse(context.Background(), tweet)
		svcErr := svcerrors.GetServiceError(err)
		if svcErr == nil || svcErr.Code != svcerrors.CodeValidation {
			t.Fatalf("tweet %q: expected VALIDATION, got %v", tweet, err)
		}
	}
}

func TestParseNoAddressFound(t *testing.T) {
	svc := New(RegexExtractor{}, "10000000000000", nil)

	_, err := svc.Parse(context.Background(), "gm, no tokens here")
	svcErr := svcerrors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != svcerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestRegexExtractor(t *testing.T) {
	addr, err := RegexExtractor{}.Extract(context.Background(), "buy "+usdc+" now")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if addr != usdc {
		t.Fatalf("address = %s, want %s", addr, usdc)
	}
}

func TestModelExtractor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("Authorization = %q", got)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Fatalf("model = %s", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Fatalf("unexpected messages: %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `{"address":"` + usdc + `"}`}},
			},
		})
	}))
	defer server.Close()

	extractor := NewModelExtractor(server.URL, "test-key", "gpt-4o-mini", nil)

	addr, err := extractor.Extract(context.Background(), "ape into $USDC")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if addr != usdc {
		t.Fatalf("address = %s, want %s", addr, usdc)
	}
}

func TestModelExtractorNullFallsBackToScan(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `{"address":null}`}},
			},
		})
	}))
	defer server.Close()

	extractor := NewModelExtractor(server.URL, "test-key", "gpt-4o-mini", nil)

	addr, err := extractor.Extract(context.Background(), "check out "+usdc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if addr != usdc {
		t.Fatalf("fallback scan returned %s, want %s", addr, usdc)
	}
}

func TestModelExtractorUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	extractor := NewModelExtractor(server.URL, "test-key", "gpt-4o-mini", nil)

	if _, err := extractor.Extract(context.Background(), "anything"); err == nil {
		t.Fatal("expected error on upstream failure")
	}
}
