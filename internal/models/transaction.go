package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is the durable audit record of a single attempted operation.
// It is persisted in PENDING state before any external call is made, and
// transitions exactly once to SUCCESS or FAILED.
type Transaction struct {
	ID            string           `json:"id"`
	FromAccountID *string          `json:"from_account_id,omitempty"`
	ToAccountID   *string          `json:"to_account_id,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	Kind          TransactionKind  `json:"kind"`
	State         TransactionState `json:"state"`
	CreatedAt     time.Time        `json:"created_at"`
}

type TransactionKind string

const (
	KindDeposit  TransactionKind = "DEPOSIT"
	KindWithdraw TransactionKind = "WITHDRAW"
	KindTransfer TransactionKind = "TRANSFER"
)

type TransactionState string

const (
	StatePending TransactionState = "PENDING"
	StateSuccess TransactionState = "SUCCESS"
	StateFailed  TransactionState = "FAILED"
)
