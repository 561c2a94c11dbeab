package models

import "time"

// Notification types.
const (
	NotificationPaymentClaimed  = "payment_claimed"
	NotificationPaymentReceived = "payment_received"
	NotificationStudentAction   = "student_action"
	NotificationSystemAlert     = "system_alert"
)

// Notification priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Notification is an append-only alert derived from student payment
// transitions. Only IsRead may change after creation.
type Notification struct {
	ID            string    `bson:"_id" json:"id"`
	Type          string    `bson:"type" json:"type"`
	Title         string    `bson:"title" json:"title"`
	Message       string    `bson:"message" json:"message"`
	StudentID     string    `bson:"studentId,omitempty" json:"studentId,omitempty"`
	StudentName   string    `bson:"studentName,omitempty" json:"studentName,omitempty"`
	Amount        float64   `bson:"amount,omitempty" json:"amount,omitempty"`
	PaymentMethod string    `bson:"paymentMethod,omitempty" json:"paymentMethod,omitempty"`
	Timestamp     time.Time `bson:"timestamp" json:"timestamp"`
	IsRead        bool      `bson:"isRead" json:"isRead"`
	Priority      string    `bson:"priority" json:"priority"`
}

// RecordID implements store.Record.
func (n *Notification) RecordID() string { return n.ID }

// SetRecordID implements store.Record.
func (n *Notification) SetRecordID(id string) { n.ID = id }

// StampUpdated implements store.Record.
func (n *Notification) StampUpdated(t time.Time) {
	if n.Timestamp.IsZero() {
		n.Timestamp = t
	}
}
