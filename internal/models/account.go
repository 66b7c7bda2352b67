package models

import "github.com/shopspring/decimal"

// AccountSnapshot is a read-only view of an account as reported by the
// external Account service. Balance changes are never applied locally.
type AccountSnapshot struct {
	AccountID     string          `json:"account_id"`
	UserID        string          `json:"user_id"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	Status        AccountStatus   `json:"status"`
}

type AccountStatus string

const (
	AccountActive AccountStatus = "ACTIVE"
	AccountClosed AccountStatus = "CLOSED"
)
