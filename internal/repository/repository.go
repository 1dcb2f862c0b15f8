// Package repository provides data access interfaces and implementations
// for the citation alert service.
//
// The package follows the repository pattern to abstract persistence from
// the pipeline. All methods return domain-specific errors:
//
//   - domain.ErrNotFound: resource does not exist
//   - domain.ErrAlreadyExists: unique constraint violation
//
// Repositories accept the DBTX interface so they run against the pool, a
// pgx transaction, or a pgxmock pool in tests.
package repository

import (
	"github.com/helixir/citation-alert-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX
