package models

// IdentitySnapshot is a read-only view of a user as reported by the external
// User service. The KYC status is re-fetched on every transaction and never
// cached.
type IdentitySnapshot struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	KycStatus KycStatus `json:"kyc_status"`
}

type KycStatus string

const (
	KycPending  KycStatus = "PENDING"
	KycVerified KycStatus = "VERIFIED"
	KycRejected KycStatus = "REJECTED"
)
