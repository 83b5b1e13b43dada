package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/finbridge/ledger-service/internal/domain"
)

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func sendErrorResponse(w http.ResponseWriter, status int, code, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Code: code, Message: message, Details: details})
}

func sendJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// sendDomainError maps ledger errors onto HTTP statuses. Anything
// unrecognized is a 500 with a generic body so internals never leak.
func sendDomainError(w http.ResponseWriter, err error) {
	var insufficientBalance *domain.InsufficientBalanceError
	var insufficientAsset *domain.InsufficientAssetError

	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidDestination),
		errors.Is(err, domain.ErrMissingAssetSymbol):
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), "")
	case errors.Is(err, domain.ErrRecipientNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrPortfolioNotFound):
		sendErrorResponse(w, http.StatusNotFound, "NOT_FOUND", err.Error(), "")
	case errors.Is(err, domain.ErrAssetNotOwned):
		sendErrorResponse(w, http.StatusUnprocessableEntity, "ASSET_NOT_OWNED", err.Error(), "")
	case errors.As(err, &insufficientBalance):
		sendErrorResponse(w, http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE", err.Error(), "")
	case errors.As(err, &insufficientAsset):
		sendErrorResponse(w, http.StatusUnprocessableEntity, "INSUFFICIENT_ASSET", err.Error(), "")
	default:
		sendErrorResponse(w, http.StatusInternalServerError, "INTERNAL", "Internal server error", "")
	}
}
