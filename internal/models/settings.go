package models

import "time"

// HostelSettings is the singleton configuration record. Exactly one
// instance exists; it is created lazily on first write.
type HostelSettings struct {
	ID               string     `bson:"_id" json:"id"`
	MonthlyFee       float64    `bson:"monthlyFee" json:"monthlyFee"`
	UPIID            string     `bson:"upiId" json:"upiId"`
	HostelName       string     `bson:"hostelName" json:"hostelName"`
	EnablePayNow     bool       `bson:"enablePayNow" json:"enablePayNow"`
	LastMonthlyReset *time.Time `bson:"lastMonthlyReset,omitempty" json:"lastMonthlyReset,omitempty"`
}

// RecordID implements store.Record.
func (s *HostelSettings) RecordID() string { return s.ID }

// SetRecordID implements store.Record.
func (s *HostelSettings) SetRecordID(id string) { s.ID = id }

// StampUpdated implements store.Record. Settings carry no generic
// updated-at field; the reset timestamp is managed explicitly.
func (s *HostelSettings) StampUpdated(time.Time) {}
