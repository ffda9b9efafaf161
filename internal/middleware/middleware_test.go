package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	svcerrors "github.com/apetweet-labs/swap_layer/internal/errors"
)

type mapVerifier map[string]string

func (m mapVerifier) Verify(token string) (string, error) {
	userID, ok := m[token]
	if !ok {
		return "", svcerrors.InvalidToken(errors.New("unknown token"))
	}
	return userID, nil
}

func echoUserHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetUserID(r.Context())))
	})
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	auth := NewAuthMiddleware(mapVerifier{"good": "user-1"}, nil, nil)
	handler := auth.Handler(echoUserHandler())

	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	req.Header.Set("Authorization", "Bearer good")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Body.String() != "user-1" {
		t.Fatalf("user in context = %q, want user-1", resp.Body.String())
	}
}

func TestAuthMiddlewareRejects(t *testing.T) {
	auth := NewAuthMiddleware(mapVerifier{"good": "user-1"}, nil, nil)
	handler := auth.Handler(echoUserHandler())

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Basic Zm9vOmJhcg==",
		"unknown token":  "Bearer bad",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)

			if resp.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.Code)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
				t.Fatalf("error body is not JSON: %v", err)
			}
			if _, ok := body["error"].(string); !ok {
				t.Fatalf("missing error message in %v", body)
			}
		})
	}
}

func TestAuthMiddlewareSkipPaths(t *testing.T) {
	auth := NewAuthMiddleware(mapVerifier{}, nil, []string{"/healthz"})
	handler := auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected skip path to pass unauthenticated, got %d", resp.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 within burst, got %d", i, resp.Code)
		}
	}

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 past burst, got %d", resp.Code)
	}

	// a different caller has its own bucket
	other := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, other)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected separate bucket per caller, got %d", resp.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	cors := NewCORSMiddleware([]string{"https://app.example.com"})
	handler := cors.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/execute-swap", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", resp.Code)
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow-origin = %q", got)
	}
}

func TestCORSDisallowedOrigin(t *testing.T) {
	cors := NewCORSMiddleware([]string{"https://app.example.com"})
	handler := cors.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin %q for disallowed origin", got)
	}
}

func TestTracingMiddleware(t *testing.T) {
	tracing := NewTracingMiddleware(nil)
	handler := tracing.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/wallet", nil))
	if resp.Header().Get("X-Trace-ID") == "" {
		t.Fatal("expected a generated X-Trace-ID header")
	}

	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if got := resp.Header().Get("X-Trace-ID"); got != "trace-123" {
		t.Fatalf("trace id = %q, want the inbound one", got)
	}
}

func TestRateLimiterBucketsPerAuthenticatedUser(t *testing.T) {
	verifier := mapVerifier{"tok-1": "user-1", "tok-2": "user-2"}
	auth := NewAuthMiddleware(verifier, nil, nil)
	rl := NewRateLimiter(1, 1, nil)
	// auth outside the limiter, matching the server's composition, so the
	// limiter keys on the verified user instead of the shared RemoteAddr
	handler := auth.Handler(rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	send := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		req.Header.Set("Authorization", "Bearer "+token)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := send("tok-1"); code != http.StatusOK {
		t.Fatalf("first request for user-1: got %d", code)
	}
	if code := send("tok-1"); code != http.StatusTooManyRequests {
		t.Fatalf("second request for user-1: got %d, want 429", code)
	}
	if code := send("tok-2"); code != http.StatusOK {
		t.Fatalf("user-2 behind the same address must have its own bucket, got %d", code)
	}
}
