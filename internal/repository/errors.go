// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrEmailExists indicates that a registration collided with
// an existing account and should become an HTTP 409, while plain
// sql.ErrNoRows is passed through as the generic not-found signal.
package repository

import "errors"

// ErrEmailExists is returned when an insert into the users table
// violates the unique email index. Handlers should translate this
// into an HTTP 409 response.
var ErrEmailExists = errors.New("email already exists")
