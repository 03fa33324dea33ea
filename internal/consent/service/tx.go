package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	id "likeness/pkg/domain"
	dErrors "likeness/pkg/domain-errors"
)

// ConsentStoreTx serializes ledger mutations per CID. fn sees a store whose
// writes become visible together or not at all. Mutations of different CIDs
// do not wait on each other.
type ConsentStoreTx interface {
	RunInTx(ctx context.Context, cid id.CID, fn func(ctx context.Context, store Store) error) error
}

// DefaultTxTimeout bounds one ledger mutation when the caller set no deadline.
const DefaultTxTimeout = 5 * time.Second

const numConsentShards = 128

// BoundTx returns ctx with a deadline of timeout (DefaultTxTimeout when zero)
// unless it already has one. A context that is already done is rejected.
func BoundTx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return ctx, func() {}, errTxAborted(err)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}, nil
	}
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}

func errTxAborted(err error) error {
	return dErrors.Wrap(err, dErrors.CodeTimeout, "consent transaction aborted")
}

// StagedStore buffers writes until Commit.
type StagedStore interface {
	Store
	Commit() error
}

// ShardedTx is the in-memory ConsentStoreTx: one mutex per CID shard, with
// writes optionally staged and committed after fn succeeds.
type ShardedTx struct {
	shards  [numConsentShards]sync.Mutex
	store   Store
	stage   func() StagedStore
	timeout time.Duration
}

// NewShardedTx wraps a concurrency-safe store. A nil stage writes straight
// through to store.
func NewShardedTx(store Store, stage func() StagedStore, timeout time.Duration) *ShardedTx {
	return &ShardedTx{store: store, stage: stage, timeout: timeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, cid id.CID, fn func(ctx context.Context, store Store) error) error {
	ctx, cancel, err := BoundTx(ctx, t.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	mu := &t.shards[ShardFor(cid)]
	mu.Lock()
	defer mu.Unlock()

	// the deadline may have passed while queued behind another writer
	if err := ctx.Err(); err != nil {
		return errTxAborted(err)
	}

	if t.stage == nil {
		return fn(ctx, t.store)
	}
	staged := t.stage()
	if err := fn(ctx, staged); err != nil {
		return err
	}
	if err := staged.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit consent transaction")
	}
	return nil
}

// ShardFor maps a CID onto its lock shard.
func ShardFor(cid id.CID) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(cid))
	return int(h.Sum32() % numConsentShards)
}
