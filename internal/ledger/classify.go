package ledger

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// Storage constraint names shared by the Postgres and SQLite schemas.
const (
	constraintWalletOwner       = "wallets_owner_id_key"
	constraintPositiveBalance   = "chk_wallet_positive_balance"
	constraintPositiveAmount    = "chk_transaction_positive_amount"
	constraintTransactionRefKey = "wallet_transactions_reference_key"
)

// PostgreSQL SQLSTATE codes the classifier understands.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgLockNotAvailable    = "55P03"
	pgDeadlockDetected    = "40P01"
	pgConnectionClass     = "08"
)

// Classify maps a raw storage failure onto the domain taxonomy. Errors that
// already carry a Kind pass through; op is attached when they have none.
// Classify is pure: it never retries and never logs.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var le *Error
	if errors.As(err, &le) {
		if le.Op != "" || op == "" {
			return le
		}
		out := *le
		out.Op = op
		return &out
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPostgres(op, pgErr)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return classifySQLite(op, liteErr)
	}

	if isConnectionFailure(err) {
		return newError(KindConnection, op, ErrConnection.Message, err)
	}

	return newError(KindGeneric, op, err.Error(), err)
}

func classifyPostgres(op string, pgErr *pgconn.PgError) *Error {
	switch {
	case pgErr.Code == pgUniqueViolation:
		if pgErr.ConstraintName == constraintWalletOwner {
			return newError(KindConflict, op, ErrConflict.Message, pgErr)
		}
		return newError(KindDuplicateReference, op, duplicateMessage(pgErr.ConstraintName), pgErr)
	case pgErr.Code == pgForeignKeyViolation:
		return newError(KindForeignKeyViolation, op, ErrForeignKeyViolation.Message, pgErr)
	case pgErr.Code == pgCheckViolation && pgErr.ConstraintName == constraintPositiveBalance:
		return newError(KindInsufficientFunds, op, ErrInsufficientFunds.Message, pgErr)
	case pgErr.Code == pgCheckViolation && pgErr.ConstraintName == constraintPositiveAmount:
		return newError(KindValidation, op, "amount must be greater than zero", pgErr)
	case pgErr.Code == pgLockNotAvailable:
		return newError(KindLockTimeout, op, ErrLockTimeout.Message, pgErr)
	case pgErr.Code == pgDeadlockDetected:
		return newError(KindDeadlock, op, ErrDeadlock.Message, pgErr)
	case strings.HasPrefix(pgErr.Code, pgConnectionClass):
		return newError(KindConnection, op, ErrConnection.Message, pgErr)
	default:
		return newError(KindGeneric, op, pgErr.Message, pgErr)
	}
}

func classifySQLite(op string, liteErr sqlite3.Error) *Error {
	msg := liteErr.Error()
	switch liteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		if strings.Contains(msg, "wallets.owner_id") {
			return newError(KindConflict, op, ErrConflict.Message, liteErr)
		}
		return newError(KindDuplicateReference, op, duplicateMessage(uniqueColumn(msg)), liteErr)
	case sqlite3.ErrConstraintForeignKey:
		return newError(KindForeignKeyViolation, op, ErrForeignKeyViolation.Message, liteErr)
	case sqlite3.ErrConstraintCheck:
		if strings.Contains(msg, constraintPositiveBalance) {
			return newError(KindInsufficientFunds, op, ErrInsufficientFunds.Message, liteErr)
		}
		if strings.Contains(msg, constraintPositiveAmount) {
			return newError(KindValidation, op, "amount must be greater than zero", liteErr)
		}
	}

	switch liteErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return newError(KindLockTimeout, op, ErrLockTimeout.Message, liteErr)
	case sqlite3.ErrCantOpen, sqlite3.ErrIoErr, sqlite3.ErrNotADB:
		return newError(KindConnection, op, ErrConnection.Message, liteErr)
	default:
		return newError(KindGeneric, op, msg, liteErr)
	}
}

func isConnectionFailure(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func duplicateMessage(field string) string {
	if field == "" {
		return ErrDuplicateReference.Message
	}
	return "duplicate value for " + field
}

// uniqueColumn extracts "table.column" from SQLite's
// "UNIQUE constraint failed: table.column" message.
func uniqueColumn(msg string) string {
	const marker = "constraint failed: "
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(msg[idx+len(marker):])
}
