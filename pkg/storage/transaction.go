package storage

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/asMODhias/VerseGuy-sub000/pkg/log"
	"github.com/asMODhias/VerseGuy-sub000/pkg/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

type opKind int

const (
	opPut opKind = iota
	opDelete
)

type batchOp struct {
	kind  opKind
	key   string
	value []byte
}

// txState outlives the Transaction so the cleanup can inspect it
type txState struct {
	id      string
	done    atomic.Bool
	pending atomic.Int64
}

// Transaction buffers puts and deletes and applies them in order on Commit.
// Commit is all-or-nothing: the whole buffer is written in one bbolt write
// transaction, so a failure leaves none of the operations applied.
// A Transaction is not safe for concurrent use.
type Transaction struct {
	engine  *Engine
	state   *txState
	ops     []batchOp
	logger  zerolog.Logger
	cleanup runtime.Cleanup
}

// NewTransaction begins an empty transaction against e. No I/O happens
// until Commit.
func NewTransaction(e *Engine) *Transaction {
	st := &txState{id: uuid.NewString()}
	tx := &Transaction{
		engine: e,
		state:  st,
		logger: log.WithTxID(st.id),
	}
	tx.cleanup = runtime.AddCleanup(tx, warnAbandoned, st)
	return tx
}

// Begin is shorthand for NewTransaction(e)
func (e *Engine) Begin() *Transaction {
	return NewTransaction(e)
}

// ID identifies the transaction in logs
func (tx *Transaction) ID() string {
	return tx.state.id
}

// Len returns the number of buffered operations
func (tx *Transaction) Len() int {
	return len(tx.ops)
}

// Put buffers a write of value under key
func (tx *Transaction) Put(key string, value []byte) error {
	if tx.state.done.Load() {
		return ErrTxDone
	}
	tx.ops = append(tx.ops, batchOp{kind: opPut, key: key, value: append([]byte{}, value...)})
	tx.state.pending.Store(int64(len(tx.ops)))
	return nil
}

// Delete buffers a delete of key
func (tx *Transaction) Delete(key string) error {
	if tx.state.done.Load() {
		return ErrTxDone
	}
	tx.ops = append(tx.ops, batchOp{kind: opDelete, key: key})
	tx.state.pending.Store(int64(len(tx.ops)))
	return nil
}

// Commit applies every buffered operation in order, then flushes.
// The transaction is finished afterwards whether or not Commit succeeded.
func (tx *Transaction) Commit() error {
	if !tx.finish() {
		return ErrTxDone
	}

	if err := tx.engine.applyBatch(tx.ops); err != nil {
		metrics.TransactionsTotal.WithLabelValues("failed").Inc()
		tx.logger.Error().Err(err).Int("ops", len(tx.ops)).Msg("Transaction commit failed")
		return err
	}
	if err := tx.engine.Flush(); err != nil {
		metrics.TransactionsTotal.WithLabelValues("failed").Inc()
		return err
	}

	metrics.TransactionsTotal.WithLabelValues("committed").Inc()
	tx.logger.Debug().Int("ops", len(tx.ops)).Msg("Transaction committed")
	tx.ops = nil
	return nil
}

// Rollback discards the buffer without touching the engine. Calling it after
// Commit is a no-op, so `defer tx.Rollback()` is always safe.
func (tx *Transaction) Rollback() error {
	if !tx.finish() {
		return nil
	}
	metrics.TransactionsTotal.WithLabelValues("rolled_back").Inc()
	tx.ops = nil
	return nil
}

// finish marks the transaction done exactly once
func (tx *Transaction) finish() bool {
	if !tx.state.done.CompareAndSwap(false, true) {
		return false
	}
	tx.cleanup.Stop()
	return true
}

func warnAbandoned(st *txState) {
	if st.done.Load() {
		return
	}
	metrics.TransactionsTotal.WithLabelValues("abandoned").Inc()
	logger := log.WithTxID(st.id)
	logger.Warn().
		Int64("pending_ops", st.pending.Load()).
		Msg("Transaction discarded without commit or rollback; buffered operations were not applied")
}

// applyBatch writes ops in order inside one bbolt write transaction
func (e *Engine) applyBatch(ops []batchOp) (err error) {
	timer := metrics.NewTimer()
	defer func() { e.observe("batch", timer, err) }()

	if e.closed.Load() {
		return ErrClosed
	}

	encoded := make([][]byte, len(ops))
	for i, op := range ops {
		if op.kind != opPut {
			continue
		}
		if encoded[i], err = e.encode(op.value); err != nil {
			return e.wrap("batch put", op.key, err)
		}
	}

	err = e.db.Update(func(btx *bolt.Tx) error {
		b := btx.Bucket(bucketKV)
		for i, op := range ops {
			var err error
			switch op.kind {
			case opPut:
				err = b.Put([]byte(op.key), encoded[i])
			case opDelete:
				err = b.Delete([]byte(op.key))
			}
			if err != nil {
				return fmt.Errorf("op %d on %q: %w", i, op.key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: batch: %v", ErrDatabase, err)
	}
	return nil
}
