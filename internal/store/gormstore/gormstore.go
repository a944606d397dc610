package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintIdempotencyKey     = "uniq_credit_transactions_idempotency_key"
	constraintReservationPrimary = "credit_reservations_pkey"
	columnIdempotencyKey         = "idempotency_key"
	columnReservationID          = "reservation_id"
	dialectPostgres              = "postgres"
	defaultMetadataJSON          = "{}"
	pgUniqueViolationCode        = "23505"
	pgLockNotAvailableCode       = "55P03"
	sqliteConstraintCode         = 19
	errorOperationStore          = "store"
	errorSubjectAccount          = "account"
	errorSubjectBalance          = "balance"
	errorSubjectTransaction      = "transaction"
	errorSubjectReservation      = "reservation"
	errorCodeCreate              = "create"
	errorCodeDuplicate           = "duplicate"
	errorCodeGet                 = "get"
	errorCodeInsert              = "insert"
	errorCodeInvalid             = "invalid"
	errorCodeList                = "list"
	errorCodeLock                = "lock"
	errorCodeLookup              = "lookup"
	errorCodeSumPending          = "sum_pending"
	errorCodeSumTransactions     = "sum_transactions"
	errorCodeUpdate              = "update"
	errorCodeUpdateStatus        = "update_status"
)

// Store implements ledger.Store using GORM (PostgreSQL or SQLite).
type Store struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds row-lock waits on PostgreSQL via SET LOCAL lock_timeout.
func WithLockTimeout(timeout time.Duration) Option {
	return func(store *Store) {
		store.lockTimeout = timeout
	}
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB, options ...Option) *Store {
	store := &Store{db: db}
	for _, option := range options {
		option(store)
	}
	return store
}

// Migrate creates or updates the ledger tables.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if store.lockTimeout > 0 && transaction.Dialector.Name() == dialectPostgres {
			statement := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", store.lockTimeout.Milliseconds())
			if err := transaction.Exec(statement).Error; err != nil {
				return wrapStoreError(errorSubjectAccount, errorCodeLock, err)
			}
		}
		return fn(ctx, &Store{db: transaction, lockTimeout: store.lockTimeout})
	})
}

func (store *Store) CreateAccount(ctx context.Context, account ledger.Account) error {
	model := Account{
		AccountID:      account.AccountID().String(),
		Balance:        account.Balance().Int64(),
		LifetimeEarned: account.LifetimeEarned().Int64(),
		Sequence:       account.Sequence(),
		CreatedUnixUTC: account.CreatedUnixUTC(),
		UpdatedUnixUTC: account.UpdatedUnixUTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "account_id"}}, DoNothing: true}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetAccount(ctx context.Context, accountID ledger.AccountID) (ledger.Account, error) {
	return store.loadAccount(store.db.WithContext(ctx), accountID)
}

func (store *Store) GetAccountForUpdate(ctx context.Context, accountID ledger.AccountID) (ledger.Account, error) {
	return store.loadAccount(store.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), accountID)
}

func (store *Store) loadAccount(query *gorm.DB, accountID ledger.AccountID) (ledger.Account, error) {
	var model Account
	err := query.Where("account_id = ?", accountID.String()).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrAccountNotFound)
		}
		if isLockNotAvailable(err) {
			return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLock, ledger.ErrAccountLockTimeout)
		}
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	account, err := ledger.NewAccount(accountID, ledger.Credits(model.Balance), ledger.Credits(model.LifetimeEarned), model.Sequence, model.CreatedUnixUTC, model.UpdatedUnixUTC)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return account, nil
}

func (store *Store) UpdateAccount(ctx context.Context, account ledger.Account) error {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("account_id = ?", account.AccountID().String()).
		Updates(map[string]interface{}{
			"balance":          account.Balance().Int64(),
			"lifetime_earned":  account.LifetimeEarned().Int64(),
			"sequence":         account.Sequence(),
			"updated_unix_utc": account.UpdatedUnixUTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, ledger.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) AppendTransaction(ctx context.Context, transaction ledger.Transaction) error {
	model := Transaction{
		TransactionID:  transaction.TransactionID().String(),
		AccountID:      transaction.AccountID().String(),
		Sequence:       transaction.Sequence(),
		Amount:         transaction.Amount().Int64(),
		RunningBalance: transaction.RunningBalance().Int64(),
		Kind:           transaction.Kind().String(),
		SourcePlatform: transaction.SourcePlatform().String(),
		IdempotencyKey: optionalString(transaction.IdempotencyKey().String()),
		ReservationID:  optionalString(transaction.ReservationID().String()),
		ReferenceID:    optionalString(transaction.Reference().ID()),
		ReferenceType:  optionalString(transaction.Reference().Type()),
		Metadata:       datatypesJSON(transaction.Metadata().String()),
		CreatedUnixUTC: transaction.CreatedUnixUTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintIdempotencyKey, columnIdempotencyKey) {
		return wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, ledger.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) FindTransactionByIdempotencyKey(ctx context.Context, key ledger.IdempotencyKey) (ledger.Transaction, bool, error) {
	if key.IsZero() {
		return ledger.Transaction{}, false, nil
	}
	var model Transaction
	err := store.db.WithContext(ctx).Where("idempotency_key = ?", key.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ledger.Transaction{}, false, nil
	}
	if err != nil {
		return ledger.Transaction{}, false, wrapStoreError(errorSubjectTransaction, errorCodeLookup, err)
	}
	transaction, err := mapTransaction(model)
	if err != nil {
		return ledger.Transaction{}, false, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	return transaction, true, nil
}

func (store *Store) ListTransactions(ctx context.Context, accountID ledger.AccountID, beforeSequence int64, limit int) ([]ledger.Transaction, error) {
	query := store.db.WithContext(ctx).Where("account_id = ?", accountID.String())
	if beforeSequence > 0 {
		query = query.Where("sequence < ?", beforeSequence)
	}
	var rows []Transaction
	if err := query.Order("sequence DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	transactions := make([]ledger.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func (store *Store) SumTransactions(ctx context.Context, accountID ledger.AccountID) (int64, int64, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&Transaction{}).
		Select("coalesce(sum(amount),0) as total, count(*) as count").
		Where("account_id = ?", accountID.String()).
		Scan(&sum).Error
	if err != nil {
		return 0, 0, wrapStoreError(errorSubjectBalance, errorCodeSumTransactions, err)
	}
	return sum.Total, sum.Count, nil
}

func (store *Store) InsertReservation(ctx context.Context, reservation ledger.Reservation) error {
	model := Reservation{
		ReservationID:    reservation.ReservationID().String(),
		AccountID:        reservation.AccountID().String(),
		Amount:           reservation.Amount().Int64(),
		Purpose:          reservation.Purpose(),
		SourcePlatform:   reservation.SourcePlatform().String(),
		Status:           reservation.Status().String(),
		ReferenceID:      optionalString(reservation.Reference().ID()),
		ReferenceType:    optionalString(reservation.Reference().Type()),
		Metadata:         datatypesJSON(reservation.Metadata().String()),
		ExpiresAtUnixUTC: reservation.ExpiresAtUnixUTC(),
		CreatedUnixUTC:   reservation.CreatedUnixUTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintReservationPrimary, columnReservationID) {
		return wrapStoreError(errorSubjectReservation, errorCodeDuplicate, ledger.ErrReservationExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) GetReservation(ctx context.Context, reservationID ledger.ReservationID) (ledger.Reservation, error) {
	var model Reservation
	err := store.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, ledger.ErrReservationNotFound)
		}
		return ledger.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, err)
	}
	reservation, err := mapReservation(model)
	if err != nil {
		return ledger.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
	}
	return reservation, nil
}

func (store *Store) SumPendingUnexpired(ctx context.Context, accountID ledger.AccountID, atUnixUTC int64) (ledger.Credits, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Select("coalesce(sum(amount),0) as total").
		Where("account_id = ? AND status = ? AND expires_at_unix_utc > ?", accountID.String(), ledger.ReservationStatusPending.String(), atUnixUTC).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSumPending, err)
	}
	pending, err := ledger.NewCredits(sum.Total)
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeInvalid, err)
	}
	return pending, nil
}

func (store *Store) TransitionReservation(ctx context.Context, reservation ledger.Reservation, from ledger.ReservationStatus) error {
	result := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("reservation_id = ? AND status = ?", reservation.ReservationID().String(), from.String()).
		Updates(map[string]interface{}{
			"status":             reservation.Status().String(),
			"committed_unix_utc": optionalUnix(reservation.CommittedUnixUTC()),
			"released_unix_utc":  optionalUnix(reservation.ReleasedUnixUTC()),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, ledger.ErrReservationAlreadyProcessed)
	}
	return nil
}

func (store *Store) ListExpiredReservations(ctx context.Context, atUnixUTC int64, limit int) ([]ledger.Reservation, error) {
	var rows []Reservation
	err := store.db.WithContext(ctx).
		Where("status = ? AND expires_at_unix_utc <= ?", ledger.ReservationStatusPending.String(), atUnixUTC).
		Order("expires_at_unix_utc ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	reservations := make([]ledger.Reservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := mapReservation(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

type sqlSum struct {
	Total int64
	Count int64
}

func mapTransaction(row Transaction) (ledger.Transaction, error) {
	transactionID, err := ledger.NewTransactionID(row.TransactionID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	accountID, err := ledger.NewAccountID(row.AccountID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	amount, err := ledger.NewCreditDelta(row.Amount)
	if err != nil {
		return ledger.Transaction{}, err
	}
	runningBalance, err := ledger.NewCredits(row.RunningBalance)
	if err != nil {
		return ledger.Transaction{}, err
	}
	kind, err := ledger.ParseTransactionKind(row.Kind)
	if err != nil {
		return ledger.Transaction{}, err
	}
	platform, err := ledger.NewSourcePlatform(row.SourcePlatform)
	if err != nil {
		return ledger.Transaction{}, err
	}
	idempotencyKey, err := ledger.ParseOptionalIdempotencyKey(stringOrEmpty(row.IdempotencyKey))
	if err != nil {
		return ledger.Transaction{}, err
	}
	var reservationID ledger.ReservationID
	if row.ReservationID != nil {
		reservationID, err = ledger.NewReservationID(*row.ReservationID)
		if err != nil {
			return ledger.Transaction{}, err
		}
	}
	reference, err := ledger.NewReference(stringOrEmpty(row.ReferenceID), stringOrEmpty(row.ReferenceType))
	if err != nil {
		return ledger.Transaction{}, err
	}
	metadata, err := ledger.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return ledger.Transaction{}, err
	}
	return ledger.NewTransaction(ledger.TransactionParams{
		TransactionID:  transactionID,
		AccountID:      accountID,
		Sequence:       row.Sequence,
		Amount:         amount,
		RunningBalance: runningBalance,
		Kind:           kind,
		SourcePlatform: platform,
		IdempotencyKey: idempotencyKey,
		ReservationID:  reservationID,
		Reference:      reference,
		Metadata:       metadata,
		CreatedUnixUTC: row.CreatedUnixUTC,
	})
}

func mapReservation(row Reservation) (ledger.Reservation, error) {
	reservationID, err := ledger.NewReservationID(row.ReservationID)
	if err != nil {
		return ledger.Reservation{}, err
	}
	accountID, err := ledger.NewAccountID(row.AccountID)
	if err != nil {
		return ledger.Reservation{}, err
	}
	amount, err := ledger.NewPositiveCredits(row.Amount)
	if err != nil {
		return ledger.Reservation{}, err
	}
	platform, err := ledger.NewSourcePlatform(row.SourcePlatform)
	if err != nil {
		return ledger.Reservation{}, err
	}
	status, err := ledger.ParseReservationStatus(row.Status)
	if err != nil {
		return ledger.Reservation{}, err
	}
	reference, err := ledger.NewReference(stringOrEmpty(row.ReferenceID), stringOrEmpty(row.ReferenceType))
	if err != nil {
		return ledger.Reservation{}, err
	}
	metadata, err := ledger.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return ledger.Reservation{}, err
	}
	return ledger.NewReservation(ledger.ReservationParams{
		ReservationID:    reservationID,
		AccountID:        accountID,
		Amount:           amount,
		Purpose:          row.Purpose,
		SourcePlatform:   platform,
		Status:           status,
		Reference:        reference,
		Metadata:         metadata,
		ExpiresAtUnixUTC: row.ExpiresAtUnixUTC,
		CreatedUnixUTC:   row.CreatedUnixUTC,
		CommittedUnixUTC: int64OrZero(row.CommittedUnixUTC),
		ReleasedUnixUTC:  int64OrZero(row.ReleasedUnixUTC),
	})
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func stringOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func optionalUnix(value int64) *int64 {
	if value == 0 {
		return nil
	}
	return &value
}

func int64OrZero(value *int64) int64 {
	if value == nil {
		return 0
	}
	return *value
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error, constraint string, column string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode && strings.Contains(sqliteErr.Error(), "."+column)
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func isLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailableCode
}
