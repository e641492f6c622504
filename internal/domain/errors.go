// Package domain contains domain models and business logic errors.
package domain

import "errors"

// ErrNotFound is returned when a requested resource is not found.
var ErrNotFound = errors.New("resource not found")
