package apperror

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error classes the storage adapter recognizes.
const (
	pgUniqueViolation  = "23505"
	pgNotNullViolation = "23502"
	pgCheckViolation   = "23514"
	pgInvalidTextRep   = "22P02"
	pgStringTruncation = "22001"
)

// From converts any failure into the closed error union. Already-typed errors
// pass through unchanged; recognized external failure families get a precise
// kind; everything else becomes a non-operational Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}

	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fromPg(pgErr, err)
	}

	if isTokenLibraryError(err) {
		return Unauthorized("invalid or expired token")
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Unavailable("request timed out")
	}

	return Internal(err)
}

func fromPg(pgErr *pgconn.PgError, cause error) *Error {
	switch pgErr.Code {
	case pgUniqueViolation:
		field := duplicateKeyField(pgErr)
		if field == "" {
			return Conflict("duplicate value violates a unique constraint")
		}
		return Conflict(fmt.Sprintf("%s already exists", field))
	case pgNotNullViolation:
		if pgErr.ColumnName != "" {
			return BadRequest(fmt.Sprintf("%s must not be empty", pgErr.ColumnName))
		}
		return BadRequest("a required field is missing")
	case pgCheckViolation, pgInvalidTextRep, pgStringTruncation:
		return BadRequest("invalid value for one or more fields")
	default:
		return Database(cause)
	}
}

// duplicateKeyField extracts the offending column from a unique-violation
// error, preferring the detail line ("Key (email)=(...) already exists.") and
// falling back to the constraint name.
func duplicateKeyField(pgErr *pgconn.PgError) string {
	detail := pgErr.Detail
	if open := strings.Index(detail, "("); open >= 0 {
		if close := strings.Index(detail[open:], ")"); close > 0 {
			return detail[open+1 : open+close]
		}
	}
	name := pgErr.ConstraintName
	for _, suffix := range []string{"_key", "_idx", "_unique"} {
		name = strings.TrimSuffix(name, suffix)
	}
	if pgErr.TableName != "" {
		name = strings.TrimPrefix(name, pgErr.TableName+"_")
	}
	return name
}

func isTokenLibraryError(err error) bool {
	for _, target := range []error{
		jwt.ErrTokenExpired,
		jwt.ErrTokenMalformed,
		jwt.ErrTokenNotValidYet,
		jwt.ErrTokenSignatureInvalid,
		jwt.ErrSignatureInvalid,
		jwt.ErrTokenUnverifiable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
