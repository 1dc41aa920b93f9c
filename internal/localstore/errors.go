package localstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record id is not in the store.
	ErrNotFound = errors.New("record not found")

	// ErrExists is returned by Put when the record already carries a stored id.
	ErrExists = errors.New("record already exists")

	// ErrUnavailable wraps every failure of the persistence layer itself.
	ErrUnavailable = errors.New("local store unavailable")
)

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
