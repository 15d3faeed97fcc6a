package bbolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldline/internal/store"
	"worldline/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(filepath.Join(t.TempDir(), "world.db"))
		require.NoError(t, err)
		return s
	})
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, store.Item{Partition: "wld_a", SortKey: "world", Owner: "usr_1", Data: []byte(`{}`)}))
	require.NoError(t, s.Close(ctx))

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close(ctx)

	got, err := s.Get(ctx, "wld_a", "world")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", got.Owner)
}

func TestNilStore(t *testing.T) {
	var s *Store
	_, err := s.Get(context.Background(), "p", "k")
	assert.Error(t, err)
	assert.NoError(t, s.Close(context.Background()))
}
