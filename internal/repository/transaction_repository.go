package repository

import (
	"context"

	"github.com/finvault/transaction-service/internal/models"
)

// TransactionRepository is the durable transaction ledger store. Writes are
// append-only except for the single PENDING-to-terminal state transition and
// the resolved-account-id update made during transfers.
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	UpdateState(ctx context.Context, id string, state models.TransactionState) error
	UpdateAccounts(ctx context.Context, id, fromAccountID, toAccountID string) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	ListByAccount(ctx context.Context, accountID string) ([]models.Transaction, error)
}
