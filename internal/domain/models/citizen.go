package models

import "time"

// IdentityLink maps a phone number to a registered account
type IdentityLink struct {
	Phone     string    `json:"phone" db:"phone"`
	AccountID string    `json:"account_id" db:"account_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Citizen is a registered resident who receives area broadcasts
type Citizen struct {
	AccountID string    `json:"account_id" db:"account_id"`
	Name      string    `json:"name" db:"name"`
	Phone     string    `json:"phone" db:"phone"`
	City      string    `json:"city" db:"city"`
	Address   string    `json:"address" db:"address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
