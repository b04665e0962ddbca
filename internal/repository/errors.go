package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a row does not exist. Services match on
// this instead of driver-level errors.
var ErrNotFound = errors.New("record not found")

// notFound maps pgx's no-rows error onto ErrNotFound and passes every
// other error through.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
