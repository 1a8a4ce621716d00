package models

import (
	"time"

	"github.com/google/uuid"
)

// BroadcastStatus is the outcome recorded for a broadcast
type BroadcastStatus string

const (
	BroadcastStatusSent    BroadcastStatus = "sent"
	BroadcastStatusPartial BroadcastStatus = "partial"
	BroadcastStatusNoMatch BroadcastStatus = "no_match"
)

// Broadcast types
const (
	BroadcastTypeAlert        = "alert"
	BroadcastTypeVerification = "verification"
	BroadcastTypeStatusUpdate = "status_update"
)

// BroadcastRecord is one row of the append-only broadcast audit log.
// Reach counts attempted sends, not confirmed deliveries.
type BroadcastRecord struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	Area       string          `json:"area" db:"area"`
	Type       string          `json:"type" db:"type"`
	Message    string          `json:"message" db:"message"`
	Department string          `json:"department,omitempty" db:"department"`
	Sender     string          `json:"sender" db:"sender"`
	Reach      int             `json:"reach" db:"reach"`
	Failed     int             `json:"failed" db:"failed"`
	Status     BroadcastStatus `json:"status" db:"status"`
	Timestamp  time.Time       `json:"timestamp" db:"created_at"`
}

// BroadcastRequest is the body of POST /api/v1/broadcasts
type BroadcastRequest struct {
	Area       string `json:"area"`
	Message    string `json:"message"`
	Type       string `json:"type,omitempty"`
	Department string `json:"department,omitempty"`
	Sender     string `json:"sender,omitempty"`
}

// BroadcastResult summarizes a finished fan-out
type BroadcastResult struct {
	Record   *BroadcastRecord `json:"record"`
	Attempts int              `json:"attempts"`
	Failures int              `json:"failures"`
}
