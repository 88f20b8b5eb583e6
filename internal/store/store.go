// Package store provides typed access to the users, images and transactions tables.
//
// Every store runs on a sqlx.ExtContext so the same code serves both the
// connection pool and an open transaction.
package store

import (
	"fmt"

	"github.com/illegalcall/imaginify/internal/models"
)

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrPersistence, op, err)
}
