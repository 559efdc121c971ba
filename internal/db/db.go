package db

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would violate a uniqueness constraint.
	ErrConflict     = errors.New("already exists")
	ErrInvalidInput = errors.New("invalid input")
	// ErrStaleHead is returned by AppendEdit when the head moved since the edit was computed.
	ErrStaleHead = errors.New("head version changed")
	ErrInternal  = errors.New("internal database error")
)

type DB interface {
	Instances
	Persons
	Follows
	Articles
	Edits
	Comments
	Activities
}
