package models

import "time"

// Expense categories.
const (
	ExpenseCategoryMaintenance = "maintenance"
	ExpenseCategorySalary      = "salary"
	ExpenseCategoryRent        = "rent"
	ExpenseCategoryUtility     = "utility"
	ExpenseCategoryGrocery     = "grocery"
	ExpenseCategoryWifi        = "wifi"
	ExpenseCategoryOther       = "other"
)

// Expense payment methods.
const (
	ExpenseMethodCash         = "cash"
	ExpenseMethodUPI          = "upi"
	ExpenseMethodBankTransfer = "bank_transfer"
	ExpenseMethodCheque       = "cheque"
)

// Expense is a single business outgoing recorded by the admin.
type Expense struct {
	ID            string    `bson:"_id" json:"id"`
	Category      string    `bson:"category" json:"category"`
	Description   string    `bson:"description" json:"description"`
	Amount        float64   `bson:"amount" json:"amount"`
	Date          string    `bson:"date" json:"date"`
	PaymentMethod string    `bson:"paymentMethod" json:"paymentMethod"`
	RecipientName string    `bson:"recipientName" json:"recipientName"`
	Notes         string    `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedBy     string    `bson:"createdBy" json:"createdBy"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
}

// RecordID implements store.Record.
func (e *Expense) RecordID() string { return e.ID }

// SetRecordID implements store.Record.
func (e *Expense) SetRecordID(id string) { e.ID = id }

// StampUpdated implements store.Record. Expenses only carry a creation
// timestamp, stamped once when the record is first written.
func (e *Expense) StampUpdated(t time.Time) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = t
	}
}

// ExpenseSummary aggregates bookkeeping totals for the dashboard.
type ExpenseSummary struct {
	TotalAmount      float64            `json:"totalAmount"`
	TotalsByCategory map[string]float64 `json:"totalsByCategory"`
	MonthlyTotal     float64            `json:"monthlyTotal"`
	CollectedFees    float64            `json:"collectedFees"`
	NetCashFlow      float64            `json:"netCashFlow"`
	Month            string             `json:"month"`
}
