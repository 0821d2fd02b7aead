// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the entity already exists or the write collides with existing state.
var ErrConflict = errors.New("conflict")

// ErrValidation indicates the input failed validation.
var ErrValidation = errors.New("validation failed")
