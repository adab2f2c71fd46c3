// Copyright (C) 2025, MarketForge Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/marketforge/cpv/core"
)

// AdminRouter builds the operator-facing router: metrics export, vendor
// account administration and per-product analytics. Served on its own
// listener, never exposed publicly.
func (s *Server) AdminRouter() *mux.Router {
	router := mux.NewRouter()

	router.Handle("/metrics", promhttp.HandlerFor(
		s.metrics.GetGatherer(),
		promhttp.HandlerOpts{},
	)).Methods(http.MethodGet)

	router.HandleFunc("/admin/vendors/{id}/topup", s.handleTopUp).Methods(http.MethodPost)
	router.HandleFunc("/admin/vendors/{id}", s.handleAccount).Methods(http.MethodGet)
	router.HandleFunc("/admin/vendors/{id}/transactions", s.handleTransactions).Methods(http.MethodGet)
	router.HandleFunc("/admin/products/{id}/stats", s.handleStats).Methods(http.MethodGet)

	return router
}

type topUpRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (s *Server) handleTopUp(w http.ResponseWriter, r *http.Request) {
	vendorID := mux.Vars(r)["id"]

	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	acct, err := s.billing.TopUp(r.Context(), vendorID, req.Amount, req.Currency)
	if err != nil {
		s.writeAdminError(w, err)
		return
	}

	s.metrics.TopUps.Inc()
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.billing.Account(mux.Vars(r)["id"])
	if err != nil {
		s.writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.billing.Transactions(mux.Vars(r)["id"])
	if err != nil {
		s.writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.views.Stats(mux.Vars(r)["id"]))
}

func (s *Server) writeAdminError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrTransient):
		status = http.StatusServiceUnavailable
	}
	writeJSONError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
