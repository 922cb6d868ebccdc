package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chandamin/Shipperman/pkg/shipper"
)

// CredentialsPath is where operators configure a shop's carrier key.
const CredentialsPath = "/api/shops/{shop}/credentials"

// ErrorResponse is the JSON body written for failed requests.
type ErrorResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	Retryable   bool   `json:"retryable"`
	Hint        string `json:"hint,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`
}

// KindName returns a stable label for the taxonomy kind of err.
func KindName(err error) string {
	switch shipper.Kind(err) {
	case shipper.ErrNotApplicable:
		return "not_applicable"
	case shipper.ErrNotConfigured:
		return "not_configured"
	case shipper.ErrUnrecognizedShop:
		return "unrecognized_shop"
	case shipper.ErrInvalidRequest:
		return "invalid_request"
	case shipper.ErrCarrierUnavailable:
		return "carrier_unavailable"
	case shipper.ErrCarrierProtocol:
		return "carrier_protocol"
	default:
		return "internal"
	}
}

// StatusFor maps an error onto the HTTP status answered to the caller.
func StatusFor(err error) int {
	switch shipper.Kind(err) {
	case shipper.ErrNotApplicable:
		return http.StatusOK
	case shipper.ErrNotConfigured:
		return http.StatusNotFound
	case shipper.ErrUnrecognizedShop, shipper.ErrInvalidRequest:
		return http.StatusBadRequest
	case shipper.ErrCarrierUnavailable:
		if isTimeout(err) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case shipper.ErrCarrierProtocol:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse builds the body describing err. Unclassified errors are not
// echoed to the caller.
func NewErrorResponse(err error, referenceID string) ErrorResponse {
	resp := ErrorResponse{
		Error:       KindName(err),
		Message:     err.Error(),
		Retryable:   shipper.IsRetryable(err),
		ReferenceID: referenceID,
	}
	switch shipper.Kind(err) {
	case shipper.ErrNotConfigured:
		resp.Hint = "configure the carrier API key with PUT " + CredentialsPath
	case shipper.ErrCarrierUnavailable:
		if referenceID != "" {
			resp.Hint = "retry with the same reference_id to avoid a duplicate order"
		}
	case nil:
		resp.Message = "internal error"
	}
	return resp
}

// WriteError writes err as a JSON error response.
func WriteError(w http.ResponseWriter, err error, referenceID string) {
	WriteJSON(w, StatusFor(err), NewErrorResponse(err, referenceID))
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
