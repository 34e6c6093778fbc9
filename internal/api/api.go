// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api provides the merchant-facing HTTP endpoints
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/blinklabs-io/paygate/internal/invoice"
	"github.com/blinklabs-io/paygate/internal/logging"
	"github.com/blinklabs-io/paygate/internal/store"
	"github.com/blinklabs-io/paygate/internal/version"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Store is the persistence surface the API needs. *store.Store
// satisfies this.
type Store interface {
	Ping(ctx context.Context) error
	VerifyApiKey(
		ctx context.Context,
		keyId string,
		secret string,
	) (uuid.UUID, error)
}

// Creator creates invoices. *invoice.Creator satisfies this.
type Creator interface {
	Create(
		ctx context.Context,
		params invoice.Params,
	) (*store.Invoice, error)
}

// Api provides the HTTP endpoints for merchants and probes
type Api struct {
	store   Store
	redis   *redis.Client
	creator Creator
}

// New creates a new Api instance. The redis client may be nil when no
// REDIS_URL is configured; readiness then covers the database only.
func New(s Store, redisClient *redis.Client, creator Creator) *Api {
	return &Api{
		store:   s,
		redis:   redisClient,
		creator: creator,
	}
}

// RegisterHandlers registers HTTP handlers on the given ServeMux
func (a *Api) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", a.HandleHealth)
	mux.HandleFunc("/api/ready", a.HandleReady)
	mux.HandleFunc("/api/invoices", a.HandleCreateInvoice)
}

// StartServer starts the HTTP server and shuts it down gracefully when
// the context is cancelled
func (a *Api) StartServer(ctx context.Context, addr string) error {
	logger := logging.GetLogger()

	mux := http.NewServeMux()
	a.RegisterHandlers(mux)

	logger.Info("starting API server", "addr", addr)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			5*time.Second,
		)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil &&
		!errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// HandleHealth reports liveness without touching any dependency
func (a *Api) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"service":   "paygate-api",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   version.GetVersionString(),
	})
}

// HandleReady reports readiness by checking each dependency, returning
// 503 with per-dependency detail when any check fails
func (a *Api) HandleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	deps := map[string]string{}
	ready := true
	if err := a.store.Ping(ctx); err != nil {
		deps["database"] = err.Error()
		ready = false
	} else {
		deps["database"] = "ok"
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			deps["redis"] = err.Error()
			ready = false
		} else {
			deps["redis"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ready":        ready,
		"dependencies": deps,
	})
}

type createInvoiceRequest struct {
	BaseAmount    string         `json:"base_amount"`
	Currency      string         `json:"currency"`
	Network       string         `json:"network"`
	Address       string         `json:"address"`
	AddressTag    string         `json:"address_tag"`
	ExpirySeconds int64          `json:"expiry_seconds"`
	Metadata      map[string]any `json:"metadata"`
}

type createInvoiceResponse struct {
	InvoiceId     string         `json:"invoice_id"`
	MerchantId    string         `json:"merchant_id"`
	PublishAmount string         `json:"publish_amount"`
	Currency      string         `json:"currency"`
	Network       string         `json:"network,omitempty"`
	Address       string         `json:"address,omitempty"`
	AddressTag    string         `json:"address_tag,omitempty"`
	Status        string         `json:"status"`
	Expiry        *time.Time     `json:"expiry,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// HandleCreateInvoice creates an invoice for the authenticated merchant
func (a *Api) HandleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLogger()
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	merchantId, ok := a.authenticate(r)
	if !ok {
		writeJsonError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := decimal.NewFromString(req.BaseAmount)
	if err != nil || amount.Sign() <= 0 {
		writeJsonError(
			w,
			http.StatusBadRequest,
			"base_amount must be a positive decimal",
		)
		return
	}
	if req.Address == "" {
		writeJsonError(w, http.StatusBadRequest, "address is required")
		return
	}
	if req.ExpirySeconds < 0 {
		writeJsonError(
			w,
			http.StatusBadRequest,
			"expiry_seconds must not be negative",
		)
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = "USDT"
	}
	var expiry *time.Time
	if req.ExpirySeconds > 0 {
		t := time.Now().
			Add(time.Duration(req.ExpirySeconds) * time.Second)
		expiry = &t
	}

	inv, err := a.creator.Create(r.Context(), invoice.Params{
		MerchantId: merchantId,
		BaseAmount: amount,
		Currency:   currency,
		Network:    req.Network,
		Address:    req.Address,
		AddressTag: req.AddressTag,
		Expiry:     expiry,
		Metadata:   req.Metadata,
	})
	if err != nil {
		if errors.Is(err, invoice.ErrCollisionExhausted) {
			writeJsonError(
				w,
				http.StatusConflict,
				"no unique publish amount available, escalated for manual resolution",
			)
			return
		}
		logger.Error("invoice creation failed", "error", err)
		writeJsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createInvoiceResponse{
		InvoiceId:     inv.Id.String(),
		MerchantId:    inv.MerchantId.String(),
		PublishAmount: inv.PublishAmount.String(),
		Currency:      inv.Currency,
		Network:       inv.Network,
		Address:       inv.Address,
		AddressTag:    inv.AddressTag,
		Status:        inv.Status,
		Expiry:        inv.Expiry,
		Metadata:      inv.Metadata,
	})
}

// authenticate resolves the merchant from the Authorization header,
// formatted as "Bearer <key_id>:<secret>"
func (a *Api) authenticate(r *http.Request) (uuid.UUID, bool) {
	auth := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(auth, "Bearer ")
	if !found {
		return uuid.Nil, false
	}
	keyId, secret, found := strings.Cut(token, ":")
	if !found || keyId == "" || secret == "" {
		return uuid.Nil, false
	}
	merchantId, err := a.store.VerifyApiKey(r.Context(), keyId, secret)
	if err != nil {
		return uuid.Nil, false
	}
	return merchantId, true
}

func writeJsonError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
