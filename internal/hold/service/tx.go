package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"holdright/pkg/domain"
	dErrors "holdright/pkg/domain-errors"
	"holdright/pkg/platform/tx"
)

// HoldTx provides the transactional boundary for hold mutations. All writes
// to one hold serialize through it, which is what makes the per-hold audit
// sequence gapless and the derived counters race-free.
type HoldTx interface {
	RunInHoldTx(ctx context.Context, holdID domain.HoldID, fn func(ctx context.Context) error) error
}

// shardedHoldTx distributes per-hold locks across N shards keyed by a hash
// of the hold ID. Two holds on different shards mutate concurrently; two
// operations on the same hold never do.
const numHoldShards = 128

// defaultHoldTxTimeout bounds how long a mutation may hold its shard.
const defaultHoldTxTimeout = 5 * time.Second

type shardedHoldTx struct {
	shards  [numHoldShards]sync.Mutex
	db      *sql.DB
	timeout time.Duration
}

// NewShardedTx builds the standard lock-sharded transaction runner. db may
// be nil for in-memory deployments; when set, fn runs inside a SQL
// transaction carried on the context so store and audit writes commit
// together.
func NewShardedTx(db *sql.DB) HoldTx {
	return &shardedHoldTx{db: db}
}

func (t *shardedHoldTx) RunInHoldTx(ctx context.Context, holdID domain.HoldID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultHoldTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	shard := hashHoldID(holdID.String()) % numHoldShards
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if t.db == nil {
		return fn(ctx)
	}

	sqlTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "begin transaction")
	}
	if err := fn(tx.WithTx(ctx, sqlTx)); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "commit transaction")
	}
	return nil
}

// hashHoldID uses FNV-1a for even shard distribution.
func hashHoldID(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
