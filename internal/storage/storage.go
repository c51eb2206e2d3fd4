// Package storage provides the relational persistence layer behind the
// semantic, procedural, and learning repositories.
package storage

import "errors"

// ErrUnavailable indicates the backing store could not serve the request.
var ErrUnavailable = errors.New("storage unavailable")
