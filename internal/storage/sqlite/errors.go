package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/metrics"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// classify maps driver errors onto the domain taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrAlreadyExists) || errors.Is(err, apperr.ErrInvalidArgument) {
		return err
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return fmt.Errorf("%s: %w", op, apperr.ErrAlreadyExists)
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
		case sqlite3lib.SQLITE_CONSTRAINT_CHECK:
			return fmt.Errorf("%s: %w: %s", op, apperr.ErrInvalidArgument, sqliteErr.Error())
		}
	}
	return apperr.Unavailable(op, err)
}

func observe(op string, start time.Time, errp *error) {
	var err error
	if errp != nil {
		err = *errp
	}
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrAlreadyExists) {
		err = nil
	}
	if errors.Is(err, context.Canceled) {
		err = context.Canceled
	} else if errors.Is(err, context.DeadlineExceeded) {
		err = context.DeadlineExceeded
	}
	metrics.RecordQuery(op, start, err)
}

// escapeLike escapes LIKE wildcards; queries pair it with ESCAPE '\'.
func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

func boolInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}
