package orderqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

const (
	jobPrefix   = "job:"
	indexPrefix = "idx:"
)

// BadgerQueue is a disk-backed implementation of Queue using BadgerDB.
type BadgerQueue struct {
	db     *badger.DB
	logger *zap.Logger
}

// NewBadgerQueue opens (or creates) a queue stored at path.
func NewBadgerQueue(path string, logger *zap.Logger) (*BadgerQueue, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	return openBadgerQueue(opts, logger)
}

// NewBadgerQueueInMemory opens a non-persistent badger queue, for tests.
func NewBadgerQueueInMemory(logger *zap.Logger) (*BadgerQueue, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openBadgerQueue(opts, logger)
}

func openBadgerQueue(opts badger.Options, logger *zap.Logger) (*BadgerQueue, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &BadgerQueue{db: db, logger: logger}, nil
}

// jobKey sorts by creation time, so iteration order is FIFO.
func jobKey(j MatchJob) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", jobPrefix, j.CreatedAt.UnixNano(), j.ID))
}

func indexKey(id string) []byte {
	return []byte(indexPrefix + id)
}

// Enqueue stores the job and an id index entry in one transaction.
func (q *BadgerQueue) Enqueue(_ context.Context, job MatchJob) error {
	val, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}
	key := jobKey(job)
	err = q.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(indexKey(job.ID))
		if err == nil {
			return fmt.Errorf("%w: %s", ErrDuplicate, job.ID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, val); err != nil {
			return err
		}
		return txn.Set(indexKey(job.ID), key)
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}

// Acknowledge removes the processed job from storage.
func (q *BadgerQueue) Acknowledge(_ context.Context, id string) error {
	return q.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(indexKey(id))
	})
}

// ReplayPending returns all unacknowledged jobs, oldest first.
func (q *BadgerQueue) ReplayPending(_ context.Context) ([]MatchJob, error) {
	jobs := make([]MatchJob, 0)
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var j MatchJob
			err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &j) })
			if err != nil {
				q.logger.Warn("Skipping undecodable match job",
					zap.ByteString("key", it.Item().KeyCopy(nil)), zap.Error(err))
				continue
			}
			jobs = append(jobs, j)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Len counts pending jobs with a key-only scan.
func (q *BadgerQueue) Len(_ context.Context) (int, error) {
	n := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(jobPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Shutdown closes the underlying BadgerDB.
func (q *BadgerQueue) Shutdown(_ context.Context) error {
	return q.db.Close()
}
