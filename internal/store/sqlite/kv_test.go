package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"worldline/internal/store"
	"worldline/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		c, err := New(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "world.db"))
		require.NoError(t, err)
		return c
	})
}

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		c, err := New(context.Background(), "sqlite://:memory:")
		require.NoError(t, err)
		return c
	})
}
