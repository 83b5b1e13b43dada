package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finbridge/ledger-service/internal/domain"
)

// DepositService is the crediting surface the handlers call.
type DepositService interface {
	Credit(ctx context.Context, params domain.CreditDepositParams) (*domain.Deposit, *domain.Portfolio, error)
	Portfolio(ctx context.Context, userID uuid.UUID) (*domain.Portfolio, error)
}

// TransferService is the transfer surface the handlers call.
type TransferService interface {
	Transfer(ctx context.Context, senderID uuid.UUID, asset string, amount decimal.Decimal, destination, memo string) (*domain.TransferResult, error)
	LookupRecipient(ctx context.Context, callerID uuid.UUID, identifier string) (*domain.User, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]domain.P2PTransfer, error)
}

// Handler serves the ledger HTTP API.
type Handler struct {
	deposits  DepositService
	transfers TransferService
}

func NewHandler(deposits DepositService, transfers TransferService) *Handler {
	return &Handler{deposits: deposits, transfers: transfers}
}

type depositRequest struct {
	UserID      uuid.UUID        `json:"userId"`
	Type        string           `json:"type"`
	Amount      decimal.Decimal  `json:"amount"`
	Currency    string           `json:"currency,omitempty"`
	CryptoAsset string           `json:"cryptoAsset,omitempty"`
	CryptoPrice decimal.Decimal  `json:"cryptoPrice,omitempty"`
	Method      string           `json:"method,omitempty"`
	Fee         *decimal.Decimal `json:"fee,omitempty"`
	TxHash      string           `json:"txHash,omitempty"`
	Note        string           `json:"note,omitempty"`
}

type depositResponse struct {
	ID              string                `json:"id"`
	Status          string                `json:"status"`
	Amount          decimal.Decimal       `json:"amount"`
	Currency        string                `json:"currency"`
	TransactionHash string                `json:"transactionHash"`
	Fee             decimal.Decimal       `json:"fee"`
	Confirmations   int                   `json:"confirmations"`
	Details         domain.DepositDetails `json:"details"`
	CreatedAt       time.Time             `json:"createdAt"`
}

// CreditDeposit handles POST /deposits. Admin only: the caller's
// identity lands in ProcessedBy, the target user comes from the body.
func (h *Handler) CreditDeposit(w http.ResponseWriter, r *http.Request) {
	adminID, ok := userIDFrom(r.Context())
	if !ok {
		sendErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity", "")
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to parse request body", err.Error())
		return
	}
	if req.UserID == uuid.Nil {
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "userId is required", "")
		return
	}

	deposit, _, err := h.deposits.Credit(r.Context(), domain.CreditDepositParams{
		UserID:      req.UserID,
		Type:        domain.DepositType(req.Type),
		Amount:      req.Amount,
		Currency:    req.Currency,
		CryptoAsset: req.CryptoAsset,
		CryptoPrice: req.CryptoPrice,
		Method:      req.Method,
		Fee:         req.Fee,
		TxHash:      req.TxHash,
		ProcessedBy: adminID.String(),
		Note:        req.Note,
	})
	if err != nil {
		sendDomainError(w, err)
		return
	}

	sendJSON(w, http.StatusCreated, depositResponse{
		ID:              deposit.ID,
		Status:          string(deposit.Status),
		Amount:          deposit.Amount,
		Currency:        deposit.Currency,
		TransactionHash: deposit.TransactionHash,
		Fee:             deposit.Fee,
		Confirmations:   deposit.Confirmations,
		Details:         deposit.Details,
		CreatedAt:       deposit.CreatedAt,
	})
}

type transferRequest struct {
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
	Memo        string          `json:"memo,omitempty"`
}

type transferResponse struct {
	Transfer   transferRecord   `json:"transfer"`
	NewBalance *decimal.Decimal `json:"newBalance,omitempty"`
}

type transferRecord struct {
	ID         string                        `json:"id"`
	SenderID   uuid.UUID                     `json:"senderId"`
	ReceiverID uuid.UUID                     `json:"receiverId"`
	Amount     decimal.Decimal               `json:"amount"`
	Currency   string                        `json:"currency"`
	Status     string                        `json:"status"`
	Kind       string                        `json:"kind"`
	Memo       string                        `json:"memo,omitempty"`
	Fiat       *domain.FiatTransferDetails   `json:"fiat,omitempty"`
	Crypto     *domain.CryptoTransferDetails `json:"crypto,omitempty"`
	CreatedAt  time.Time                     `json:"createdAt"`
}

func toTransferRecord(t *domain.P2PTransfer) transferRecord {
	return transferRecord{
		ID:         t.ID,
		SenderID:   t.SenderID,
		ReceiverID: t.ReceiverID,
		Amount:     t.Amount,
		Currency:   t.Currency,
		Status:     string(t.Status),
		Kind:       string(t.Kind),
		Memo:       t.Memo,
		Fiat:       t.Fiat,
		Crypto:     t.Crypto,
		CreatedAt:  t.CreatedAt,
	}
}

// CreateTransfer handles POST /transfers for the authenticated sender.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	senderID, ok := userIDFrom(r.Context())
	if !ok {
		sendErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity", "")
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to parse request body", err.Error())
		return
	}

	result, err := h.transfers.Transfer(r.Context(), senderID, req.Asset, req.Amount, req.Destination, req.Memo)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	resp := transferResponse{Transfer: toTransferRecord(result.Transfer)}
	if result.Transfer.Kind == domain.TransferKindFiat {
		balance := result.NewBalance
		resp.NewBalance = &balance
	}
	sendJSON(w, http.StatusCreated, resp)
}

type portfolioResponse struct {
	Balance         decimal.Decimal  `json:"balance"`
	BalanceCurrency string           `json:"balanceCurrency,omitempty"`
	Holdings        []domain.Holding `json:"holdings"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// GetPortfolio handles GET /portfolio for the authenticated user.
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		sendErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity", "")
		return
	}

	portfolio, err := h.deposits.Portfolio(r.Context(), userID)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	holdings := portfolio.Holdings()
	if holdings == nil {
		holdings = []domain.Holding{}
	}
	sendJSON(w, http.StatusOK, portfolioResponse{
		Balance:         portfolio.Balance,
		BalanceCurrency: portfolio.BalanceCurrency,
		Holdings:        holdings,
		UpdatedAt:       portfolio.UpdatedAt,
	})
}

// ListTransfers handles GET /transfers?limit=N for the authenticated
// user.
func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		sendErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity", "")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			sendErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a non-negative integer", "")
			return
		}
		limit = parsed
	}

	transfers, err := h.transfers.History(r.Context(), userID, limit)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	records := make([]transferRecord, 0, len(transfers))
	for i := range transfers {
		records = append(records, toTransferRecord(&transfers[i]))
	}
	sendJSON(w, http.StatusOK, map[string]any{"transfers": records})
}

type recipientResponse struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	AccountNumber string `json:"accountNumber"`
}

// LookupRecipient handles GET /recipients/{identifier}: a pre-send
// check that resolves an email or account number to a display name.
func (h *Handler) LookupRecipient(w http.ResponseWriter, r *http.Request) {
	callerID, ok := userIDFrom(r.Context())
	if !ok {
		sendErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing identity", "")
		return
	}

	identifier := chi.URLParam(r, "identifier")
	recipient, err := h.transfers.LookupRecipient(r.Context(), callerID, identifier)
	if err != nil {
		sendDomainError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, recipientResponse{
		Name:          recipient.DisplayName(),
		Email:         recipient.Email,
		AccountNumber: recipient.AccountNumber,
	})
}
