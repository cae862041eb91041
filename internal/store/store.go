package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// Session operations, keyed by account name.
	SaveSession(account string, s *Session) error
	GetSession(account string) (*Session, error)
	DeleteSession(account string) error

	// Oven operations
	SaveOven(oven *Oven) error
	GetOven(id string) (*Oven, error)
	DeleteOven(id string) error
	ListOvens() ([]*Oven, error)

	// Close the store
	Close() error
}
