package repository

import "errors"

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when inserting a record whose id already exists.
var ErrDuplicate = errors.New("duplicate record")
