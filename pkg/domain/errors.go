package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreClosed is returned by every operation issued after Close.
	ErrStoreClosed = errors.New("store closed")
	// ErrNotFound signals an absent key at the medium level. The record store
	// converts it into a boolean result.
	ErrNotFound = errors.New("record not found")
	// ErrWriteRejected is returned when the medium refuses a mutation or a
	// record fails schema validation after defaults were applied.
	ErrWriteRejected = errors.New("write rejected")
	// ErrUnknownCollection is returned for a collection outside the schema.
	ErrUnknownCollection = errors.New("unknown collection")
)

// StoreError decorates a storage failure with the operation that produced it.
type StoreError struct {
	Op         string
	Collection Collection
	Key        string
	Err        error
}

func (e *StoreError) Error() string {
	switch {
	case e.Key != "":
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Collection, e.Key, e.Err)
	case e.Collection != "":
		return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *StoreError) Unwrap() error { return e.Err }

// Rejected wraps cause so that errors.Is(err, ErrWriteRejected) holds while the
// underlying cause stays inspectable.
func Rejected(op string, c Collection, key string, cause error) error {
	return &StoreError{Op: op, Collection: c, Key: key, Err: errors.Join(ErrWriteRejected, cause)}
}

// IsNotFound reports whether err carries ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
