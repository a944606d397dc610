package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/credits/internal/identity"
	"github.com/MarkoPoloResearchLab/credits/pkg/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const (
	constraintIdempotencyKey     = "uniq_credit_transactions_idempotency_key"
	constraintReservationPrimary = "credit_reservations_pkey"
	constraintIdentityLink       = "uniq_identity_links_platform_user"
	pgUniqueViolationCode        = "23505"
	pgLockNotAvailableCode       = "55P03"
	errorOperationStore          = "store"
	errorSubjectAccount          = "account"
	errorSubjectBalance          = "balance"
	errorSubjectIdentity         = "identity"
	errorSubjectReservation      = "reservation"
	errorSubjectSchema           = "schema"
	errorSubjectTransaction      = "transaction"
	errorCodeBegin               = "begin"
	errorCodeCommit              = "commit"
	errorCodeCreate              = "create"
	errorCodeDuplicate           = "duplicate"
	errorCodeGet                 = "get"
	errorCodeInsert              = "insert"
	errorCodeInvalid             = "invalid"
	errorCodeList                = "list"
	errorCodeLock                = "lock"
	errorCodeLookup              = "lookup"
	errorCodeMigrate             = "migrate"
	errorCodeSumPending          = "sum_pending"
	errorCodeSumTransactions     = "sum_transactions"
	errorCodeUpdate              = "update"
	errorCodeUpdateStatus        = "update_status"

	sqlInsertAccount = `
		insert into credit_accounts(account_id, balance, lifetime_earned, sequence, created_unix_utc, updated_unix_utc)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (account_id) do nothing
	`

	sqlSelectAccount = `
		select balance, lifetime_earned, sequence, created_unix_utc, updated_unix_utc
		from credit_accounts
		where account_id = $1
	`

	sqlSelectAccountForUpdate = sqlSelectAccount + ` for update`

	sqlUpdateAccount = `
		update credit_accounts
		set balance = $2, lifetime_earned = $3, sequence = $4, updated_unix_utc = $5
		where account_id = $1
	`

	sqlInsertTransaction = `
		insert into credit_transactions(
			transaction_id, account_id, sequence, amount, running_balance, kind, source_platform,
			idempotency_key, reservation_id, reference_id, reference_type, metadata, created_unix_utc
		)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, coalesce(nullif($12, ''), '{}')::jsonb, $13)
	`

	sqlTransactionColumns = `
		select transaction_id, account_id, sequence, amount, running_balance, kind, source_platform,
			idempotency_key, reservation_id, reference_id, reference_type, metadata::text, created_unix_utc
		from credit_transactions
	`

	sqlSelectTransactionByKey = sqlTransactionColumns + ` where idempotency_key = $1`

	sqlListTransactions = sqlTransactionColumns + `
		where account_id = $1 and ($2::bigint <= 0 or sequence < $2::bigint)
		order by sequence desc
		limit $3
	`

	sqlSumTransactions = `
		select coalesce(sum(amount), 0), count(*) from credit_transactions where account_id = $1
	`

	sqlInsertReservation = `
		insert into credit_reservations(
			reservation_id, account_id, amount, purpose, source_platform, status,
			reference_id, reference_type, metadata, expires_at_unix_utc, created_unix_utc
		)
		values ($1, $2, $3, $4, $5, $6, $7, $8, coalesce(nullif($9, ''), '{}')::jsonb, $10, $11)
	`

	sqlReservationColumns = `
		select reservation_id, account_id, amount, purpose, source_platform, status,
			reference_id, reference_type, metadata::text, expires_at_unix_utc, created_unix_utc,
			committed_unix_utc, released_unix_utc
		from credit_reservations
	`

	sqlSelectReservation = sqlReservationColumns + ` where reservation_id = $1`

	sqlListExpiredReservations = sqlReservationColumns + `
		where status = 'pending' and expires_at_unix_utc <= $1
		order by expires_at_unix_utc asc
		limit $2
	`

	sqlSumPendingUnexpired = `
		select coalesce(sum(amount), 0) from credit_reservations
		where account_id = $1 and status = 'pending' and expires_at_unix_utc > $2
	`

	sqlTransitionReservation = `
		update credit_reservations
		set status = $3, committed_unix_utc = $4, released_unix_utc = $5
		where reservation_id = $1 and status = $2
	`

	sqlSelectIdentityLink = `
		select account_id from identity_links where platform = $1 and platform_user_id = $2
	`

	sqlInsertIdentityLink = `
		insert into identity_links(platform, platform_user_id, account_id, created_unix_utc)
		values ($1, $2, $3, $4)
	`
)

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements ledger.Store using a pgx connection pool (autocommit).
type Store struct {
	queries
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// TxStore implements ledger.Store for an active transaction.
type TxStore struct {
	queries
	tx pgx.Tx
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds row-lock waits inside transactions.
func WithLockTimeout(timeout time.Duration) Option {
	return func(store *Store) {
		store.lockTimeout = timeout
	}
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool, options ...Option) *Store {
	store := &Store{queries: queries{db: pool}, pool: pool}
	for _, option := range options {
		option(store)
	}
	return store
}

// Migrate applies the embedded schema. It is safe to run repeatedly.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeMigrate, err)
	}
	return nil
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	if store.lockTimeout > 0 {
		statement := fmt.Sprintf("set local lock_timeout = '%dms'", store.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, statement); err != nil {
			_ = tx.Rollback(ctx)
			return wrapStoreError(errorSubjectAccount, errorCodeLock, err)
		}
	}
	if err := fn(ctx, &TxStore{queries: queries{db: tx}, tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

// WithTx joins the enclosing transaction.
func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return fn(ctx, store)
}

type queries struct {
	db querier
}

func (q queries) CreateAccount(ctx context.Context, account ledger.Account) error {
	_, err := q.db.Exec(ctx, sqlInsertAccount,
		account.AccountID().String(),
		account.Balance().Int64(),
		account.LifetimeEarned().Int64(),
		account.Sequence(),
		account.CreatedUnixUTC(),
		account.UpdatedUnixUTC(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeCreate, err)
	}
	return nil
}

func (q queries) GetAccount(ctx context.Context, accountID ledger.AccountID) (ledger.Account, error) {
	return q.loadAccount(ctx, sqlSelectAccount, accountID)
}

func (q queries) GetAccountForUpdate(ctx context.Context, accountID ledger.AccountID) (ledger.Account, error) {
	return q.loadAccount(ctx, sqlSelectAccountForUpdate, accountID)
}

func (q queries) loadAccount(ctx context.Context, statement string, accountID ledger.AccountID) (ledger.Account, error) {
	var (
		balance        int64
		lifetimeEarned int64
		sequence       int64
		createdUnixUTC int64
		updatedUnixUTC int64
	)
	err := q.db.QueryRow(ctx, statement, accountID.String()).Scan(&balance, &lifetimeEarned, &sequence, &createdUnixUTC, &updatedUnixUTC)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrAccountNotFound)
		}
		if isLockNotAvailable(err) {
			return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLock, ledger.ErrAccountLockTimeout)
		}
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	account, err := ledger.NewAccount(accountID, ledger.Credits(balance), ledger.Credits(lifetimeEarned), sequence, createdUnixUTC, updatedUnixUTC)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	return account, nil
}

func (q queries) UpdateAccount(ctx context.Context, account ledger.Account) error {
	tag, err := q.db.Exec(ctx, sqlUpdateAccount,
		account.AccountID().String(),
		account.Balance().Int64(),
		account.LifetimeEarned().Int64(),
		account.Sequence(),
		account.UpdatedUnixUTC(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, ledger.ErrAccountNotFound)
	}
	return nil
}

func (q queries) AppendTransaction(ctx context.Context, transaction ledger.Transaction) error {
	_, err := q.db.Exec(ctx, sqlInsertTransaction,
		transaction.TransactionID().String(),
		transaction.AccountID().String(),
		transaction.Sequence(),
		transaction.Amount().Int64(),
		transaction.RunningBalance().Int64(),
		transaction.Kind().String(),
		transaction.SourcePlatform().String(),
		optionalString(transaction.IdempotencyKey().String()),
		optionalString(transaction.ReservationID().String()),
		optionalString(transaction.Reference().ID()),
		optionalString(transaction.Reference().Type()),
		transaction.Metadata().String(),
		transaction.CreatedUnixUTC(),
	)
	if isUniqueViolation(err, constraintIdempotencyKey) {
		return wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, ledger.ErrDuplicateIdempotencyKey)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (q queries) FindTransactionByIdempotencyKey(ctx context.Context, key ledger.IdempotencyKey) (ledger.Transaction, bool, error) {
	if key.IsZero() {
		return ledger.Transaction{}, false, nil
	}
	transaction, err := scanTransaction(q.db.QueryRow(ctx, sqlSelectTransactionByKey, key.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Transaction{}, false, nil
	}
	if err != nil {
		return ledger.Transaction{}, false, wrapStoreError(errorSubjectTransaction, errorCodeLookup, err)
	}
	return transaction, true, nil
}

func (q queries) ListTransactions(ctx context.Context, accountID ledger.AccountID, beforeSequence int64, limit int) ([]ledger.Transaction, error) {
	rows, err := q.db.Query(ctx, sqlListTransactions, accountID.String(), beforeSequence, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	defer rows.Close()
	transactions := make([]ledger.Transaction, 0, limit)
	for rows.Next() {
		transaction, err := scanTransaction(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	return transactions, nil
}

func (q queries) SumTransactions(ctx context.Context, accountID ledger.AccountID) (int64, int64, error) {
	var sum, count int64
	if err := q.db.QueryRow(ctx, sqlSumTransactions, accountID.String()).Scan(&sum, &count); err != nil {
		return 0, 0, wrapStoreError(errorSubjectBalance, errorCodeSumTransactions, err)
	}
	return sum, count, nil
}

func (q queries) InsertReservation(ctx context.Context, reservation ledger.Reservation) error {
	_, err := q.db.Exec(ctx, sqlInsertReservation,
		reservation.ReservationID().String(),
		reservation.AccountID().String(),
		reservation.Amount().Int64(),
		reservation.Purpose(),
		reservation.SourcePlatform().String(),
		reservation.Status().String(),
		optionalString(reservation.Reference().ID()),
		optionalString(reservation.Reference().Type()),
		reservation.Metadata().String(),
		reservation.ExpiresAtUnixUTC(),
		reservation.CreatedUnixUTC(),
	)
	if isUniqueViolation(err, constraintReservationPrimary) {
		return wrapStoreError(errorSubjectReservation, errorCodeDuplicate, ledger.ErrReservationExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeCreate, err)
	}
	return nil
}

func (q queries) GetReservation(ctx context.Context, reservationID ledger.ReservationID) (ledger.Reservation, error) {
	reservation, err := scanReservation(q.db.QueryRow(ctx, sqlSelectReservation, reservationID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, ledger.ErrReservationNotFound)
		}
		return ledger.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, err)
	}
	return reservation, nil
}

func (q queries) SumPendingUnexpired(ctx context.Context, accountID ledger.AccountID, atUnixUTC int64) (ledger.Credits, error) {
	var sum int64
	if err := q.db.QueryRow(ctx, sqlSumPendingUnexpired, accountID.String(), atUnixUTC).Scan(&sum); err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSumPending, err)
	}
	pending, err := ledger.NewCredits(sum)
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeInvalid, err)
	}
	return pending, nil
}

func (q queries) TransitionReservation(ctx context.Context, reservation ledger.Reservation, from ledger.ReservationStatus) error {
	tag, err := q.db.Exec(ctx, sqlTransitionReservation,
		reservation.ReservationID().String(),
		from.String(),
		reservation.Status().String(),
		optionalUnix(reservation.CommittedUnixUTC()),
		optionalUnix(reservation.ReleasedUnixUTC()),
	)
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, ledger.ErrReservationAlreadyProcessed)
	}
	return nil
}

func (q queries) ListExpiredReservations(ctx context.Context, atUnixUTC int64, limit int) ([]ledger.Reservation, error) {
	rows, err := q.db.Query(ctx, sqlListExpiredReservations, atUnixUTC, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	defer rows.Close()
	reservations := make([]ledger.Reservation, 0, limit)
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
		}
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	return reservations, nil
}

// FindIdentityLink implements identity.LinkStore.
func (q queries) FindIdentityLink(ctx context.Context, platform ledger.SourcePlatform, platformUserID string) (ledger.AccountID, bool, error) {
	var accountValue string
	err := q.db.QueryRow(ctx, sqlSelectIdentityLink, platform.String(), platformUserID).Scan(&accountValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.AccountID{}, false, nil
	}
	if err != nil {
		return ledger.AccountID{}, false, wrapStoreError(errorSubjectIdentity, errorCodeLookup, err)
	}
	accountID, err := ledger.NewAccountID(accountValue)
	if err != nil {
		return ledger.AccountID{}, false, wrapStoreError(errorSubjectIdentity, errorCodeInvalid, err)
	}
	return accountID, true, nil
}

// InsertIdentityLink implements identity.LinkStore.
func (q queries) InsertIdentityLink(ctx context.Context, link identity.Link) error {
	_, err := q.db.Exec(ctx, sqlInsertIdentityLink,
		link.Platform.String(),
		link.PlatformUserID,
		link.AccountID.String(),
		link.CreatedUnixUTC,
	)
	if isUniqueViolation(err, constraintIdentityLink) {
		return wrapStoreError(errorSubjectIdentity, errorCodeDuplicate, identity.ErrLinkExists)
	}
	if err != nil {
		return wrapStoreError(errorSubjectIdentity, errorCodeInsert, err)
	}
	return nil
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (ledger.Transaction, error) {
	var (
		transactionID  string
		accountValue   string
		sequence       int64
		amount         int64
		runningBalance int64
		kindValue      string
		platformValue  string
		idempotencyKey *string
		reservationID  *string
		referenceID    *string
		referenceType  *string
		metadataValue  string
		createdUnixUTC int64
	)
	if err := row.Scan(
		&transactionID,
		&accountValue,
		&sequence,
		&amount,
		&runningBalance,
		&kindValue,
		&platformValue,
		&idempotencyKey,
		&reservationID,
		&referenceID,
		&referenceType,
		&metadataValue,
		&createdUnixUTC,
	); err != nil {
		return ledger.Transaction{}, err
	}
	return buildTransaction(transactionRow{
		transactionID:  transactionID,
		accountID:      accountValue,
		sequence:       sequence,
		amount:         amount,
		runningBalance: runningBalance,
		kind:           kindValue,
		sourcePlatform: platformValue,
		idempotencyKey: stringOrEmpty(idempotencyKey),
		reservationID:  stringOrEmpty(reservationID),
		referenceID:    stringOrEmpty(referenceID),
		referenceType:  stringOrEmpty(referenceType),
		metadata:       metadataValue,
		createdUnixUTC: createdUnixUTC,
	})
}

type transactionRow struct {
	transactionID  string
	accountID      string
	sequence       int64
	amount         int64
	runningBalance int64
	kind           string
	sourcePlatform string
	idempotencyKey string
	reservationID  string
	referenceID    string
	referenceType  string
	metadata       string
	createdUnixUTC int64
}

func buildTransaction(row transactionRow) (ledger.Transaction, error) {
	transactionID, err := ledger.NewTransactionID(row.transactionID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	accountID, err := ledger.NewAccountID(row.accountID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	amount, err := ledger.NewCreditDelta(row.amount)
	if err != nil {
		return ledger.Transaction{}, err
	}
	runningBalance, err := ledger.NewCredits(row.runningBalance)
	if err != nil {
		return ledger.Transaction{}, err
	}
	kind, err := ledger.ParseTransactionKind(row.kind)
	if err != nil {
		return ledger.Transaction{}, err
	}
	platform, err := ledger.NewSourcePlatform(row.sourcePlatform)
	if err != nil {
		return ledger.Transaction{}, err
	}
	idempotencyKey, err := ledger.ParseOptionalIdempotencyKey(row.idempotencyKey)
	if err != nil {
		return ledger.Transaction{}, err
	}
	var reservationID ledger.ReservationID
	if row.reservationID != "" {
		reservationID, err = ledger.NewReservationID(row.reservationID)
		if err != nil {
			return ledger.Transaction{}, err
		}
	}
	reference, err := ledger.NewReference(row.referenceID, row.referenceType)
	if err != nil {
		return ledger.Transaction{}, err
	}
	metadata, err := ledger.NewMetadataJSON(row.metadata)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return ledger.NewTransaction(ledger.TransactionParams{
		TransactionID:  transactionID,
		AccountID:      accountID,
		Sequence:       row.sequence,
		Amount:         amount,
		RunningBalance: runningBalance,
		Kind:           kind,
		SourcePlatform: platform,
		IdempotencyKey: idempotencyKey,
		ReservationID:  reservationID,
		Reference:      reference,
		Metadata:       metadata,
		CreatedUnixUTC: row.createdUnixUTC,
	})
}

func scanReservation(row rowScanner) (ledger.Reservation, error) {
	var (
		reservationValue string
		accountValue     string
		amount           int64
		purpose          string
		platformValue    string
		statusValue      string
		referenceID      *string
		referenceType    *string
		metadataValue    string
		expiresAtUnixUTC int64
		createdUnixUTC   int64
		committedUnixUTC *int64
		releasedUnixUTC  *int64
	)
	if err := row.Scan(
		&reservationValue,
		&accountValue,
		&amount,
		&purpose,
		&platformValue,
		&statusValue,
		&referenceID,
		&referenceType,
		&metadataValue,
		&expiresAtUnixUTC,
		&createdUnixUTC,
		&committedUnixUTC,
		&releasedUnixUTC,
	); err != nil {
		return ledger.Reservation{}, err
	}
	reservationID, err := ledger.NewReservationID(reservationValue)
	if err != nil {
		return ledger.Reservation{}, err
	}
	accountID, err := ledger.NewAccountID(accountValue)
	if err != nil {
		return ledger.Reservation{}, err
	}
	amountValue, err := ledger.NewPositiveCredits(amount)
	if err != nil {
		return ledger.Reservation{}, err
	}
	platform, err := ledger.NewSourcePlatform(platformValue)
	if err != nil {
		return ledger.Reservation{}, err
	}
	status, err := ledger.ParseReservationStatus(statusValue)
	if err != nil {
		return ledger.Reservation{}, err
	}
	reference, err := ledger.NewReference(stringOrEmpty(referenceID), stringOrEmpty(referenceType))
	if err != nil {
		return ledger.Reservation{}, err
	}
	metadata, err := ledger.NewMetadataJSON(metadataValue)
	if err != nil {
		return ledger.Reservation{}, err
	}
	return ledger.NewReservation(ledger.ReservationParams{
		ReservationID:    reservationID,
		AccountID:        accountID,
		Amount:           amountValue,
		Purpose:          purpose,
		SourcePlatform:   platform,
		Status:           status,
		Reference:        reference,
		Metadata:         metadata,
		ExpiresAtUnixUTC: expiresAtUnixUTC,
		CreatedUnixUTC:   createdUnixUTC,
		CommittedUnixUTC: int64OrZero(committedUnixUTC),
		ReleasedUnixUTC:  int64OrZero(releasedUnixUTC),
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

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	return false
}

func isLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailableCode
}
