// Package store implements submission repositories and admission counter
// stores.
package store

import (
	"errors"

	"github.com/google/uuid"
	"github.com/serroba/contact-intake/internal/export"
)

var (
	ErrUnknownTable   = errors.New("unknown table")
	ErrUpstreamStatus = errors.New("upstream returned error status")
)

// project keeps only cols, in that order. An empty cols keeps the row.
func project(row export.Row, cols []string) export.Row {
	if len(cols) == 0 {
		return row
	}

	values := make([]any, len(cols))
	for i, col := range cols {
		values[i], _ = row.Get(col)
	}

	return export.NewRow(cols, values)
}

// normalize converts driver values that do not render as text on their own.
func normalize(v any) any {
	if b, ok := v.([16]byte); ok {
		return uuid.UUID(b).String()
	}

	return v
}
