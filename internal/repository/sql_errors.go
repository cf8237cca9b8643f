package repository

import (
	"errors"
	"fmt"

	"github.com/fjod/artisan-market/internal/domain"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Postgres error codes that mean the transaction lost a race and may be retried.
var pgConflictCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// classify maps driver errors to domain sentinels, keeping the original
// error in the chain.
func (r *SQLRepository) classify(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pgConflictCodes[pqErr.Code] {
		return fmt.Errorf("%w: %w", domain.ErrTransactionConflict, err)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", domain.ErrTransactionConflict, err)
		}
	}

	return err
}
