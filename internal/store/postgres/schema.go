package postgres

import (
	"context"
	"fmt"
)

// Sort keys compare bytewise, so the column uses the C collation.
const ddl = `
CREATE TABLE IF NOT EXISTS kv_items (
    partition TEXT NOT NULL,
    sort_key  TEXT COLLATE "C" NOT NULL,
    owner     TEXT NOT NULL DEFAULT '',
    data      BYTEA NOT NULL,
    PRIMARY KEY (partition, sort_key)
);

CREATE INDEX IF NOT EXISTS idx_kv_items_owner ON kv_items (owner, partition, sort_key) WHERE owner <> '';
`

func (c *Client) EnsureSchema(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// truncate empties the table; used by integration tests.
func (c *Client) truncate(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, `TRUNCATE kv_items`)
	return err
}
