// Package bbolt provides a BoltDB-backed store.Store.
//
// Each partition is a nested bucket under "items", so a prefix scan is a
// cursor seek within one bucket. The owner index is a flat bucket keyed by
// owner, partition and sort key.
package bbolt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"worldline/internal/store"
)

const sep = "\x00"

var (
	itemsBucket      = []byte("items")
	ownersBucket     = []byte("owners")
	itemOwnersBucket = []byte("item_owners")
)

var _ store.Store = (*Store)(nil)

// Store is a BoltDB-backed key-value store.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) a BoltDB file at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	clean := filepath.Clean(path)
	db, err := bbolt.Open(clean, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt store: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{itemsBucket, ownersBucket, itemOwnersBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying BoltDB handle.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, partition, sortKey string) (*store.Item, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out *store.Item
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(itemsBucket).Bucket([]byte(partition))
		if b == nil {
			return store.ErrNotFound
		}
		v := b.Get([]byte(sortKey))
		if v == nil {
			return store.ErrNotFound
		}
		out = &store.Item{
			Partition: partition,
			SortKey:   sortKey,
			Owner:     ownerOf(tx, partition, sortKey),
			Data:      bytes.Clone(v),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, item store.Item) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, item)
	})
}

func (s *Store) CompareAndPut(ctx context.Context, item store.Item, expected []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		var current []byte
		if b := tx.Bucket(itemsBucket).Bucket([]byte(item.Partition)); b != nil {
			current = b.Get([]byte(item.SortKey))
		}
		if expected == nil && current != nil {
			return store.ErrConditionFailed
		}
		if expected != nil && (current == nil || !bytes.Equal(current, expected)) {
			return store.ErrConditionFailed
		}
		return put(tx, item)
	})
}

func (s *Store) Delete(ctx context.Context, partition, sortKey string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return del(tx, partition, sortKey)
	})
}

func (s *Store) ScanPrefix(ctx context.Context, partition, prefix string, opts store.ScanOptions) ([]store.Item, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out []store.Item
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(itemsBucket).Bucket([]byte(partition))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			key := string(k)
			if !store.InRange(key, prefix, opts) {
				break
			}
			out = append(out, store.Item{
				Partition: partition,
				SortKey:   key,
				Owner:     ownerOf(tx, partition, key),
				Data:      bytes.Clone(v),
			})
			if opts.Limit > 0 && len(out) >= opts.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s/%s: %w", partition, prefix, err)
	}
	return out, nil
}

func (s *Store) ListByOwner(ctx context.Context, owner string) ([]store.Item, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out []store.Item
	err := s.db.View(func(tx *bbolt.Tx) error {
		items := tx.Bucket(itemsBucket)
		c := tx.Bucket(ownersBucket).Cursor()
		p := []byte(owner + sep)
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			partition, sortKey, ok := strings.Cut(string(k[len(p):]), sep)
			if !ok {
				return fmt.Errorf("corrupt owner index key %q", k)
			}
			b := items.Bucket([]byte(partition))
			if b == nil {
				continue
			}
			v := b.Get([]byte(sortKey))
			if v == nil {
				continue
			}
			out = append(out, store.Item{Partition: partition, SortKey: sortKey, Owner: owner, Data: bytes.Clone(v)})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing items for owner %s: %w", owner, err)
	}
	return out, nil
}

func (s *Store) WriteBatch(ctx context.Context, writes []store.Write) error {
	if err := store.CheckBatch(writes); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, w := range writes {
			var err error
			switch w.Op {
			case store.OpPut:
				err = put(tx, w.Item)
			case store.OpDelete:
				err = del(tx, w.Item.Partition, w.Item.SortKey)
			default:
				err = fmt.Errorf("unknown write op %d", w.Op)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func put(tx *bbolt.Tx, item store.Item) error {
	if item.Partition == "" || item.SortKey == "" {
		return errors.New("partition and sort key are required")
	}
	b, err := tx.Bucket(itemsBucket).CreateBucketIfNotExists([]byte(item.Partition))
	if err != nil {
		return fmt.Errorf("creating partition %s: %w", item.Partition, err)
	}
	if err := b.Put([]byte(item.SortKey), item.Data); err != nil {
		return fmt.Errorf("putting %s/%s: %w", item.Partition, item.SortKey, err)
	}
	return setOwner(tx, item.Partition, item.SortKey, item.Owner)
}

func del(tx *bbolt.Tx, partition, sortKey string) error {
	b := tx.Bucket(itemsBucket).Bucket([]byte(partition))
	if b == nil {
		return nil
	}
	if err := b.Delete([]byte(sortKey)); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", partition, sortKey, err)
	}
	if err := setOwner(tx, partition, sortKey, ""); err != nil {
		return err
	}
	if k, _ := b.Cursor().First(); k == nil {
		if err := tx.Bucket(itemsBucket).DeleteBucket([]byte(partition)); err != nil {
			return fmt.Errorf("dropping empty partition %s: %w", partition, err)
		}
	}
	return nil
}

func ownerOf(tx *bbolt.Tx, partition, sortKey string) string {
	return string(tx.Bucket(itemOwnersBucket).Get([]byte(partition + sep + sortKey)))
}

func setOwner(tx *bbolt.Tx, partition, sortKey, owner string) error {
	rowKey := []byte(partition + sep + sortKey)
	itemOwners := tx.Bucket(itemOwnersBucket)
	owners := tx.Bucket(ownersBucket)

	if prev := itemOwners.Get(rowKey); prev != nil {
		if string(prev) == owner {
			return nil
		}
		if err := owners.Delete([]byte(string(prev) + sep + partition + sep + sortKey)); err != nil {
			return err
		}
	}
	if owner == "" {
		return itemOwners.Delete(rowKey)
	}
	if err := itemOwners.Put(rowKey, []byte(owner)); err != nil {
		return err
	}
	return owners.Put([]byte(owner+sep+partition+sep+sortKey), []byte{})
}
