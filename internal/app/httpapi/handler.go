package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	app "github.com/apetweet-labs/swap_layer/internal/app"
	"github.com/apetweet-labs/swap_layer/internal/app/domain/swap"
	"github.com/apetweet-labs/swap_layer/internal/app/metrics"
	svcerrors "github.com/apetweet-labs/swap_layer/internal/errors"
	"github.com/apetweet-labs/swap_layer/internal/middleware"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	audit *auditLog
}

// Options tune the handler's auxiliary surfaces.
type Options struct {
	// AuditLogPath, when set, persists the swap audit trail as JSONL.
	AuditLogPath string
	// AuditMax bounds the in-memory audit window.
	AuditMax int
}

// NewHandler returns a mux exposing the core REST API. Authentication is
// applied by middleware around the mux; handlers read the user ID from the
// request context.
func NewHandler(application *app.Application) http.Handler {
	h, _ := NewHandlerWithOptions(application, Options{})
	return h
}

// NewHandlerWithOptions is NewHandler with an optional persistent audit sink.
func NewHandlerWithOptions(application *app.Application, opts Options) (http.Handler, error) {
	sink, err := newFileAuditSink(opts.AuditLogPath)
	if err != nil {
		return nil, err
	}

	h := &handler{app: application, audit: newAuditLog(opts.AuditMax, sink)}
	mux := http.NewServeMux()
	mux.HandleFunc("/wallet", h.wallet)
	mux.HandleFunc("/parse-tweet", h.parseTweet)
	mux.HandleFunc("/execute-swap", h.executeSwap)
	mux.HandleFunc("/audit", h.auditTrail)
	mux.HandleFunc("/healthz", h.health)
	return mux, nil
}

func (h *handler) wallet(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, svcerrors.Unauthorized(""))
		return
	}

	switch r.Method {
	case http.MethodPost:
		wallet, err := h.app.Wallets.GetOrCreate(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, wallet)

	case http.MethodGet:
		wallet, err := h.app.Wallets.Get(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, wallet)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) parseTweet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Tweet string `json:"tweet"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, svcerrors.Validation("request body must be JSON with a tweet field"))
		return
	}

	result, err := h.app.Tweets.Parse(r.Context(), payload.Tweet)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) executeSwap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, svcerrors.Unauthorized(""))
		return
	}

	var info swap.TokenInfo
	if err := decodeJSON(r.Body, &info); err != nil {
		writeError(w, svcerrors.Validation("request body must be a valid swap request"))
		return
	}

	start := time.Now()
	result, err := h.app.Swaps.Execute(r.Context(), userID, info)
	if err != nil {
		metrics.RecordSwapExecution(outcomeLabel(err), time.Since(start))
		h.audit.add(auditEntry{
			Time:     time.Now().UTC(),
			User:     userID,
			TokenOut: info.ToToken.Address,
			AmountIn: info.FromToken.Amount,
			Outcome:  outcomeLabel(err),
			Status:   svcerrors.HTTPStatus(err),
		})
		writeError(w, err)
		return
	}
	metrics.RecordSwapExecution("success", time.Since(start))
	h.audit.add(auditEntry{
		Time:     time.Now().UTC(),
		User:     userID,
		TokenOut: info.ToToken.Address,
		AmountIn: info.FromToken.Amount,
		Outcome:  "success",
		TxHash:   result.TxHash,
		Status:   http.StatusOK,
	})
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, svcerrors.Unauthorized(""))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.audit.listUser(userID, limit))
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func outcomeLabel(err error) string {
	if svcErr := svcerrors.GetServiceError(err); svcErr != nil {
		return string(svcErr.Code)
	}
	return string(svcerrors.CodeInternal)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	svcErr := svcerrors.GetServiceError(err)
	if svcErr == nil {
		svcErr = svcerrors.Internal("", err)
	}

	body := map[string]interface{}{"error": svcErr.Message}
	if len(svcErr.Details) > 0 {
		body["details"] = svcErr.Details
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(svcErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(body)
}
