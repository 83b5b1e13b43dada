package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finbridge/ledger-service/internal/domain"
)

// TransferRepository implements domain.TransferRepository on
// PostgreSQL. The kind column tags which details variant the JSONB
// details column holds.
type TransferRepository struct {
	pool *pgxpool.Pool
}

func NewTransferRepository(pool *pgxpool.Pool) *TransferRepository {
	return &TransferRepository{pool: pool}
}

// Create inserts a completed transfer record.
func (r *TransferRepository) Create(ctx context.Context, t *domain.P2PTransfer) error {
	query := `
		INSERT INTO p2p_transfers (
			id, sender_id, receiver_id, amount, currency,
			status, kind, memo, details, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	details, err := encodeTransferDetails(t)
	if err != nil {
		return err
	}

	args := []any{
		t.ID, t.SenderID, t.ReceiverID, t.Amount, t.Currency,
		t.Status, t.Kind, t.Memo, details, t.CreatedAt,
	}
	if tx := getTx(ctx); tx != nil {
		_, err = tx.Exec(ctx, query, args...)
	} else {
		_, err = r.pool.Exec(ctx, query, args...)
	}
	if err != nil {
		return fmt.Errorf("failed to create transfer: %w", err)
	}
	return nil
}

// ListByUserID returns transfers where the user is sender or receiver,
// newest first.
func (r *TransferRepository) ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]domain.P2PTransfer, error) {
	query := `
		SELECT id, sender_id, receiver_id, amount, currency,
		       status, kind, memo, details, created_at
		FROM p2p_transfers
		WHERE sender_id = $1 OR receiver_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	var rows pgx.Rows
	var err error
	if tx := getTx(ctx); tx != nil {
		rows, err = tx.Query(ctx, query, userID, limit)
	} else {
		rows, err = r.pool.Query(ctx, query, userID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var out []domain.P2PTransfer
	for rows.Next() {
		var t domain.P2PTransfer
		var details []byte
		if err := rows.Scan(
			&t.ID, &t.SenderID, &t.ReceiverID, &t.Amount, &t.Currency,
			&t.Status, &t.Kind, &t.Memo, &details, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		if err := decodeTransferDetails(&t, details); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transfers: %w", err)
	}
	return out, nil
}

func encodeTransferDetails(t *domain.P2PTransfer) ([]byte, error) {
	var payload any
	switch t.Kind {
	case domain.TransferKindFiat:
		payload = t.Fiat
	case domain.TransferKindCrypto:
		payload = t.Crypto
	default:
		return nil, fmt.Errorf("unknown transfer kind %q", t.Kind)
	}
	details, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transfer details: %w", err)
	}
	return details, nil
}

func decodeTransferDetails(t *domain.P2PTransfer, details []byte) error {
	if len(details) == 0 {
		return nil
	}
	switch t.Kind {
	case domain.TransferKindFiat:
		t.Fiat = &domain.FiatTransferDetails{}
		if err := json.Unmarshal(details, t.Fiat); err != nil {
			return fmt.Errorf("failed to decode fiat transfer details: %w", err)
		}
	case domain.TransferKindCrypto:
		t.Crypto = &domain.CryptoTransferDetails{}
		if err := json.Unmarshal(details, t.Crypto); err != nil {
			return fmt.Errorf("failed to decode crypto transfer details: %w", err)
		}
	}
	return nil
}
