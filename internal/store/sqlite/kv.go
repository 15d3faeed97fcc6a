package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"worldline/internal/store"
)

const upsertSQL = `
INSERT INTO kv_items (partition, sort_key, owner, data) VALUES (?, ?, ?, ?)
ON CONFLICT (partition, sort_key) DO UPDATE SET owner = excluded.owner, data = excluded.data`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (c *Client) Get(ctx context.Context, partition, sortKey string) (*store.Item, error) {
	return get(ctx, c.db, partition, sortKey)
}

func get(ctx context.Context, q execer, partition, sortKey string) (*store.Item, error) {
	it := store.Item{Partition: partition, SortKey: sortKey}
	err := q.QueryRowContext(ctx,
		`SELECT owner, data FROM kv_items WHERE partition = ? AND sort_key = ?`,
		partition, sortKey).Scan(&it.Owner, &it.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s/%s: %w", partition, sortKey, err)
	}
	return &it, nil
}

func (c *Client) Put(ctx context.Context, item store.Item) error {
	if _, err := c.db.ExecContext(ctx, upsertSQL, item.Partition, item.SortKey, item.Owner, item.Data); err != nil {
		return fmt.Errorf("putting %s/%s: %w", item.Partition, item.SortKey, err)
	}
	return nil
}

func (c *Client) CompareAndPut(ctx context.Context, item store.Item, expected []byte) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := get(ctx, tx, item.Partition, item.SortKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if expected != nil {
			return store.ErrConditionFailed
		}
	case err != nil:
		return err
	case expected == nil || !bytes.Equal(current.Data, expected):
		return store.ErrConditionFailed
	}

	if _, err := tx.ExecContext(ctx, upsertSQL, item.Partition, item.SortKey, item.Owner, item.Data); err != nil {
		return fmt.Errorf("putting %s/%s: %w", item.Partition, item.SortKey, err)
	}
	return tx.Commit()
}

func (c *Client) Delete(ctx context.Context, partition, sortKey string) error {
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM kv_items WHERE partition = ? AND sort_key = ?`, partition, sortKey); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", partition, sortKey, err)
	}
	return nil
}

func (c *Client) ScanPrefix(ctx context.Context, partition, prefix string, opts store.ScanOptions) ([]store.Item, error) {
	query := `SELECT sort_key, owner, data FROM kv_items
		WHERE partition = ? AND sort_key >= ? AND sort_key < ?`
	args := []any{partition, prefix, store.PrefixEnd(prefix)}
	if opts.UpperBound != "" {
		query += ` AND sort_key <= ?`
		args = append(args, opts.UpperBound)
	}
	query += ` ORDER BY sort_key`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scanning %s/%s: %w", partition, prefix, err)
	}
	defer rows.Close()

	var out []store.Item
	for rows.Next() {
		it := store.Item{Partition: partition}
		if err := rows.Scan(&it.SortKey, &it.Owner, &it.Data); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (c *Client) ListByOwner(ctx context.Context, owner string) ([]store.Item, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT partition, sort_key, data FROM kv_items WHERE owner = ? ORDER BY partition, sort_key`, owner)
	if err != nil {
		return nil, fmt.Errorf("listing items for owner %s: %w", owner, err)
	}
	defer rows.Close()

	var out []store.Item
	for rows.Next() {
		it := store.Item{Owner: owner}
		if err := rows.Scan(&it.Partition, &it.SortKey, &it.Data); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (c *Client) WriteBatch(ctx context.Context, writes []store.Write) error {
	if err := store.CheckBatch(writes); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, w := range writes {
		it := w.Item
		switch w.Op {
		case store.OpPut:
			_, err = tx.ExecContext(ctx, upsertSQL, it.Partition, it.SortKey, it.Owner, it.Data)
		case store.OpDelete:
			_, err = tx.ExecContext(ctx, `DELETE FROM kv_items WHERE partition = ? AND sort_key = ?`, it.Partition, it.SortKey)
		default:
			err = fmt.Errorf("unknown write op %d", w.Op)
		}
		if err != nil {
			return fmt.Errorf("batch %s %s/%s: %w", w.Op, it.Partition, it.SortKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}
