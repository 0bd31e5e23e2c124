package gorollup

import "context"

// TransactionManager used by SQL repositories to check and bump a metadata version atomically.
type TransactionManager interface {
	BeginTx(ctx context.Context) (tx interface{}, err RollupError)
	Commit(tx interface{}) RollupError
	Rollback(tx interface{}) RollupError
}
