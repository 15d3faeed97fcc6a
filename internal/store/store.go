// Package store defines the partitioned, ordered key-value contract the world
// engine persists through. Backends live in subpackages.
package store

import (
	"context"
	"errors"
)

// MaxBatchSize caps the rows accepted by a single WriteBatch call.
const MaxBatchSize = 25

var (
	ErrNotFound        = errors.New("record not found")
	ErrConditionFailed = errors.New("condition failed")
	ErrBatchTooLarge   = errors.New("batch too large")
)

// Store is an ordered key-value store. Items are addressed by
// (partition, sort key) and scans within a partition return items in
// ascending sort-key order.
type Store interface {
	Close(ctx context.Context) error

	Get(ctx context.Context, partition, sortKey string) (*Item, error)
	Put(ctx context.Context, item Item) error
	// CompareAndPut writes item only if the stored data equals expected.
	// A nil expected means the item must not exist.
	CompareAndPut(ctx context.Context, item Item, expected []byte) error
	Delete(ctx context.Context, partition, sortKey string) error

	ScanPrefix(ctx context.Context, partition, prefix string, opts ScanOptions) ([]Item, error)
	// ListByOwner reads the owner secondary index across partitions,
	// ordered by (partition, sort key).
	ListByOwner(ctx context.Context, owner string) ([]Item, error)

	// WriteBatch applies up to MaxBatchSize writes atomically.
	WriteBatch(ctx context.Context, writes []Write) error
}

// CheckBatch validates a batch before a backend applies it.
func CheckBatch(writes []Write) error {
	if len(writes) > MaxBatchSize {
		return ErrBatchTooLarge
	}
	for _, w := range writes {
		if w.Item.Partition == "" || w.Item.SortKey == "" {
			return errors.New("batch write missing partition or sort key")
		}
	}
	return nil
}

// Chunk splits writes into batches of at most size rows.
func Chunk(writes []Write, size int) [][]Write {
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}
	var chunks [][]Write
	for len(writes) > 0 {
		n := min(size, len(writes))
		chunks = append(chunks, writes[:n])
		writes = writes[n:]
	}
	return chunks
}
