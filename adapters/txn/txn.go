package txn

import (
	"context"
	"database/sql"

	"github.com/chararch/gorollup"
)

// DefaultTxManager default TransactionManager implementation
type DefaultTxManager struct {
	db *sql.DB
}

// NewTransactionManager create a TransactionManager instance
func NewTransactionManager(db *sql.DB) gorollup.TransactionManager {
	return &DefaultTxManager{
		db: db,
	}
}

// BeginTx begin a transaction bound to ctx
func (tm *DefaultTxManager) BeginTx(ctx context.Context) (interface{}, gorollup.RollupError) {
	tx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, gorollup.NewRollupError(gorollup.ErrCodeDbFail, "start transaction failed", err)
	}
	return tx, nil
}

// Commit commit a transaction
func (tm *DefaultTxManager) Commit(tx interface{}) gorollup.RollupError {
	tx1, ok := tx.(*sql.Tx)
	if !ok {
		return gorollup.NewRollupError(gorollup.ErrCodeGeneral, "unsupported transaction type:%T", tx)
	}
	if err := tx1.Commit(); err != nil {
		return gorollup.NewRollupError(gorollup.ErrCodeDbFail, "transaction commit failed", err)
	}
	return nil
}

// Rollback rollback a transaction
func (tm *DefaultTxManager) Rollback(tx interface{}) gorollup.RollupError {
	tx1, ok := tx.(*sql.Tx)
	if !ok {
		return gorollup.NewRollupError(gorollup.ErrCodeGeneral, "unsupported transaction type:%T", tx)
	}
	if err := tx1.Rollback(); err != nil && err != sql.ErrTxDone {
		return gorollup.NewRollupError(gorollup.ErrCodeDbFail, "transaction rollback failed", err)
	}
	return nil
}
