package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"worldline/internal/store"
)

const (
	upsertSQL = `
INSERT INTO kv_items (partition, sort_key, owner, data) VALUES ($1, $2, $3, $4)
ON CONFLICT (partition, sort_key) DO UPDATE SET owner = EXCLUDED.owner, data = EXCLUDED.data`
	deleteSQL = `DELETE FROM kv_items WHERE partition = $1 AND sort_key = $2`
)

func (c *Client) Get(ctx context.Context, partition, sortKey string) (*store.Item, error) {
	it := store.Item{Partition: partition, SortKey: sortKey}
	err := c.pool.QueryRow(ctx,
		`SELECT owner, data FROM kv_items WHERE partition = $1 AND sort_key = $2`,
		partition, sortKey).Scan(&it.Owner, &it.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s/%s: %w", partition, sortKey, err)
	}
	return &it, nil
}

func (c *Client) Put(ctx context.Context, item store.Item) error {
	if _, err := c.pool.Exec(ctx, upsertSQL, item.Partition, item.SortKey, item.Owner, item.Data); err != nil {
		return fmt.Errorf("putting %s/%s: %w", item.Partition, item.SortKey, err)
	}
	return nil
}

func (c *Client) CompareAndPut(ctx context.Context, item store.Item, expected []byte) error {
	var query string
	var args []any
	if expected == nil {
		query = `INSERT INTO kv_items (partition, sort_key, owner, data) VALUES ($1, $2, $3, $4)
			ON CONFLICT (partition, sort_key) DO NOTHING`
		args = []any{item.Partition, item.SortKey, item.Owner, item.Data}
	} else {
		query = `UPDATE kv_items SET owner = $3, data = $4
			WHERE partition = $1 AND sort_key = $2 AND data = $5`
		args = []any{item.Partition, item.SortKey, item.Owner, item.Data, expected}
	}

	tag, err := c.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("conditional put %s/%s: %w", item.Partition, item.SortKey, err)
	}
	if tag.RowsAffected() != 1 {
		return store.ErrConditionFailed
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, partition, sortKey string) error {
	if _, err := c.pool.Exec(ctx, deleteSQL, partition, sortKey); err != nil {
		return fmt.Errorf("deleting %s/%s: %w", partition, sortKey, err)
	}
	return nil
}

func (c *Client) ScanPrefix(ctx context.Context, partition, prefix string, opts store.ScanOptions) ([]store.Item, error) {
	query := `SELECT sort_key, owner, data FROM kv_items
		WHERE partition = $1 AND sort_key >= $2 AND sort_key < $3`
	args := []any{partition, prefix, store.PrefixEnd(prefix)}
	if opts.UpperBound != "" {
		args = append(args, opts.UpperBound)
		query += fmt.Sprintf(` AND sort_key <= $%d`, len(args))
	}
	query += ` ORDER BY sort_key`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := c.pool.Query(ctx, query, args...)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

func (c *Client) ListByOwner(ctx context.Context, owner string) ([]store.Item, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT partition, sort_key, data FROM kv_items WHERE owner = $1 ORDER BY partition, sort_key`, owner)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

func (c *Client) WriteBatch(ctx context.Context, writes []store.Write) error {
	if err := store.CheckBatch(writes); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, w := range writes {
		it := w.Item
		switch w.Op {
		case store.OpPut:
			batch.Queue(upsertSQL, it.Partition, it.SortKey, it.Owner, it.Data)
		case store.OpDelete:
			batch.Queue(deleteSQL, it.Partition, it.SortKey)
		default:
			return fmt.Errorf("unknown write op %d", w.Op)
		}
	}

	err := pgx.BeginFunc(ctx, c.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("writing batch: %w", err)
	}
	return nil
}
