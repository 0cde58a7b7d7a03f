package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrGoodNotFound     = errors.New("good not found")
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrGoodNotAvailable means the good does not exist or is already sold;
	// a sell against it is aborted with no writes.
	ErrGoodNotAvailable = errors.New("good not available")

	// ErrGoodNotSold means the good does not exist or is not currently sold;
	// a return against it is aborted with no writes.
	ErrGoodNotSold = errors.New("good not sold")

	// ErrInsufficientData is reported when a statistics window contains no
	// transactions at all.
	ErrInsufficientData = errors.New("insufficient data")
)

// ValidationError marks input of the wrong shape. During batch ingestion the
// offending row is skipped and processing continues.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
