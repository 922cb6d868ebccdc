package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/chandamin/Shipperman/internal/gateway"
	"github.com/chandamin/Shipperman/pkg/shipper"
	"github.com/go-chi/chi/v5"
)

const (
	shopHeader      = "X-Shopify-Shop-Domain"
	webhookIDHeader = "X-Shopify-Webhook-Id"
)

// credentialsRequest is the body of PUT /api/shops/{shop}/credentials.
type credentialsRequest struct {
	APIKey    string          `json:"api_key"`
	BaseURL   string          `json:"base_url"`
	StoreData json.RawMessage `json:"store"`
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	var cb shipper.RateCallback
	if err := decodeJSON(w, r, &cb); err != nil {
		gateway.WriteError(w, err, "")
		return
	}

	quote, err := s.dispatcher.QuoteRates(r.Context(), shopFromRequest(r), cb.Rate)
	if errors.Is(err, shipper.ErrNotApplicable) {
		gateway.WriteJSON(w, http.StatusOK, shipper.RateQuote{Rates: []shipper.CarrierRate{}})
		return
	}
	if err != nil {
		gateway.WriteError(w, err, "")
		return
	}
	gateway.WriteJSON(w, http.StatusOK, quote)
}

func (s *Server) handleOrderWebhook(w http.ResponseWriter, r *http.Request) {
	var wh shipper.OrderWebhook
	if err := decodeJSON(w, r, &wh); err != nil {
		gateway.WriteError(w, err, "")
		return
	}

	result, err := s.dispatcher.HandleOrderWebhook(r.Context(), r.Header.Get(webhookIDHeader), &wh)
	if errors.Is(err, shipper.ErrNotApplicable) {
		gateway.WriteJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
		return
	}
	if err != nil {
		gateway.WriteError(w, err, referenceOf(result))
		return
	}
	gateway.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var form shipper.OrderForm
	if err := decodeJSON(w, r, &form); err != nil {
		gateway.WriteError(w, err, "")
		return
	}

	result, err := s.dispatcher.SubmitOrder(r.Context(), chi.URLParam(r, "shop"), &form)
	if err != nil {
		gateway.WriteError(w, err, referenceOf(result))
		return
	}
	gateway.WriteJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	result, err := s.dispatcher.ListOrders(r.Context(), chi.URLParam(r, "shop"), page, size)
	if err != nil {
		gateway.WriteError(w, err, "")
		return
	}
	gateway.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleCheckPrice(w http.ResponseWriter, r *http.Request) {
	var req shipper.PriceCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		gateway.WriteError(w, err, "")
		return
	}

	result, err := s.dispatcher.CheckPrice(r.Context(), chi.URLParam(r, "shop"), &req)
	if err != nil {
		gateway.WriteError(w, err, "")
		return
	}
	gateway.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	result, err := s.dispatcher.Wallet(r.Context(), chi.URLParam(r, "shop"))
	if err != nil {
		gateway.WriteError(w, err, "")
		return
	}
	gateway.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	result, err := s.dispatcher.VerifyKey(r.Context(), chi.URLParam(r, "shop"))
	if err != nil {
		gateway.WriteError(w, err, "")
		return
	}
	gateway.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	result, err := s.dispatcher.Account(r.Context(), chi.URLParam(r, "shop"))
	if err != nil {
		gateway.WriteError(w, err, "")
		return
	}
	gateway.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		gateway.WriteError(w, err, "")
		return
	}

	info, err := s.dispatcher.ConnectShop(r.Context(), chi.URLParam(r, "shop"), req.APIKey, req.BaseURL, req.StoreData)
	if err != nil {
		gateway.WriteError(w, err, "")
		return
	}
	gateway.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "connected",
		"info":   info,
	})
}

// decodeJSON decodes the request body into v. Failures are ErrInvalidRequest.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("decoding body: %v: %w", err, shipper.ErrInvalidRequest)
	}
	return nil
}

// shopFromRequest identifies the shop of a rate callback: the shop domain header,
// else the referer host.
func shopFromRequest(r *http.Request) string {
	if shop := r.Header.Get(shopHeader); shop != "" {
		return shop
	}
	if ref, err := url.Parse(r.Header.Get("Referer")); err == nil {
		return ref.Hostname()
	}
	return ""
}

func referenceOf(result *gateway.OrderResult) string {
	if result == nil {
		return ""
	}
	return result.ReferenceID
}
