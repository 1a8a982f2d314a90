// Package repo persists user records. All backends report missing records as
// ErrNotFound and unique email violations as ErrDuplicateEmail.
package repo

import "errors"

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already in use")
)
