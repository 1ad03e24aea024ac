package repository

import (
	"context"
)

type Tx interface{}

var NoTX Tx

// TransactionManager runs fn inside a storage transaction and hands the
// transaction handle to repositories through tx.
//
// The concrete type of tx is infra-defined (pgx.Tx for Postgres). Repositories
// must accept a nil tx and fall back to the non-transactional path.
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
