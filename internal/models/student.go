package models

import "time"

// Fee status values for the current collection period.
const (
	FeeStatusPending = "pending"
	FeeStatusPaid    = "paid"
)

// Payment modes a student or admin can record against a paid fee.
const (
	PaymentModeUPI  = "upi"
	PaymentModeCash = "cash"
)

// Actor values recorded against fee status mutations.
const (
	UpdatedByStudent = "student"
	UpdatedByAdmin   = "admin"
)

// Student is a resident whose monthly fee is tracked. PaymentMode and
// UpdatedBy are empty unless set; PaymentMode is only ever present while
// FeeStatus is paid.
type Student struct {
	ID          string    `bson:"_id" json:"id"`
	Name        string    `bson:"name" json:"name"`
	Mobile      string    `bson:"mobile" json:"mobile"`
	Room        string    `bson:"room" json:"room"`
	JoiningDate string    `bson:"joiningDate" json:"joiningDate"`
	FeeStatus   string    `bson:"feeStatus" json:"feeStatus"`
	PaymentMode string    `bson:"paymentMode,omitempty" json:"paymentMode,omitempty"`
	UpdatedBy   string    `bson:"updatedBy,omitempty" json:"updatedBy,omitempty"`
	LastUpdated time.Time `bson:"lastUpdated" json:"lastUpdated"`
}

// RecordID implements store.Record.
func (s *Student) RecordID() string { return s.ID }

// SetRecordID implements store.Record.
func (s *Student) SetRecordID(id string) { s.ID = id }

// StampUpdated implements store.Record.
func (s *Student) StampUpdated(t time.Time) { s.LastUpdated = t }
