package models

import "time"

// Payment tracking statuses. Transitions are monotonic:
// pending -> processing -> completed | failed. Terminal states are final.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
)

// PaymentTracking records one payment attempt. It is process-local and
// never persisted to either store.
type PaymentTracking struct {
	ID            string     `json:"id"`
	StudentID     string     `json:"studentId"`
	Amount        float64    `json:"amount"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"paymentMethod"`
	InitiatedAt   time.Time  `json:"initiatedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	TransactionID string     `json:"transactionId,omitempty"`
}
