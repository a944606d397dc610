package gormstore

import (
	"gorm.io/datatypes"
)

// Account represents the credit_accounts table.
type Account struct {
	AccountID      string `gorm:"primaryKey"`
	Balance        int64  `gorm:"not null;default:0"`
	LifetimeEarned int64  `gorm:"not null;default:0"`
	Sequence       int64  `gorm:"not null;default:0"`
	CreatedUnixUTC int64  `gorm:"not null"`
	UpdatedUnixUTC int64  `gorm:"not null"`
}

func (Account) TableName() string { return "credit_accounts" }

// Transaction mirrors the append-only credit_transactions table.
type Transaction struct {
	TransactionID  string         `gorm:"primaryKey"`
	AccountID      string         `gorm:"not null;uniqueIndex:uniq_credit_transactions_account_sequence,priority:1;index:idx_credit_transactions_account_created,priority:1"`
	Sequence       int64          `gorm:"not null;uniqueIndex:uniq_credit_transactions_account_sequence,priority:2"`
	Amount         int64          `gorm:"not null"`
	RunningBalance int64          `gorm:"not null"`
	Kind           string         `gorm:"not null"`
	SourcePlatform string         `gorm:"not null"`
	IdempotencyKey *string        `gorm:"uniqueIndex:uniq_credit_transactions_idempotency_key"`
	ReservationID  *string        `gorm:"index:idx_credit_transactions_reservation"`
	ReferenceID    *string        `gorm:""`
	ReferenceType  *string        `gorm:""`
	Metadata       datatypes.JSON `gorm:"not null"`
	CreatedUnixUTC int64          `gorm:"not null;index:idx_credit_transactions_account_created,priority:2"`
}

func (Transaction) TableName() string { return "credit_transactions" }

// Reservation mirrors the credit_reservations table.
type Reservation struct {
	ReservationID    string         `gorm:"primaryKey"`
	AccountID        string         `gorm:"not null;index:idx_credit_reservations_account_status,priority:1"`
	Amount           int64          `gorm:"not null"`
	Purpose          string         `gorm:"not null"`
	SourcePlatform   string         `gorm:"not null"`
	Status           string         `gorm:"not null;index:idx_credit_reservations_account_status,priority:2"`
	ReferenceID      *string        `gorm:""`
	ReferenceType    *string        `gorm:""`
	Metadata         datatypes.JSON `gorm:"not null"`
	ExpiresAtUnixUTC int64          `gorm:"not null;index:idx_credit_reservations_expires_at"`
	CreatedUnixUTC   int64          `gorm:"not null"`
	CommittedUnixUTC *int64         `gorm:""`
	ReleasedUnixUTC  *int64         `gorm:""`
}

func (Reservation) TableName() string { return "credit_reservations" }

// Models lists every table owned by the store, in migration order.
func Models() []interface{} {
	return []interface{}{&Account{}, &Transaction{}, &Reservation{}}
}
