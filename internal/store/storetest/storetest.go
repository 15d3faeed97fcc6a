// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldline/internal/store"
)

// Opener returns a fresh, empty store. The store is closed by Run.
type Opener func(t *testing.T) store.Store

// Run exercises a backend against the store.Store contract.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"GetMissing", testGetMissing},
		{"PutGetDelete", testPutGetDelete},
		{"ScanPrefixOrdered", testScanPrefixOrdered},
		{"ScanUpperBound", testScanUpperBound},
		{"ScanLimit", testScanLimit},
		{"PartitionsIsolated", testPartitionsIsolated},
		{"OwnerIndex", testOwnerIndex},
		{"WriteBatch", testWriteBatch},
		{"WriteBatchTooLarge", testWriteBatchTooLarge},
		{"CompareAndPut", testCompareAndPut},
		{"CanceledContext", testCanceledContext},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close(context.Background()) })
			tt.fn(t, s)
		})
	}
}

func item(partition, key, data string) store.Item {
	return store.Item{Partition: partition, SortKey: key, Data: []byte(data)}
}

func keys(items []store.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.SortKey)
	}
	return out
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.Get(context.Background(), "wld_a", "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testPutGetDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, item("wld_a", "chr_1", `{"name":"Ana"}`)))

	got, err := s.Get(ctx, "wld_a", "chr_1")
	require.NoError(t, err)
	assert.Equal(t, "wld_a", got.Partition)
	assert.Equal(t, "chr_1", got.SortKey)
	assert.JSONEq(t, `{"name":"Ana"}`, string(got.Data))

	require.NoError(t, s.Put(ctx, item("wld_a", "chr_1", `{"name":"Ana B"}`)))
	got, err = s.Get(ctx, "wld_a", "chr_1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ana B"}`, string(got.Data))

	require.NoError(t, s.Delete(ctx, "wld_a", "chr_1"))
	_, err = s.Get(ctx, "wld_a", "chr_1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "wld_a", "chr_1"), "deleting a missing row is not an error")
}

func testScanPrefixOrdered(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, k := range []string{"evt#3#c", "evt#1#a", "rel#x", "evt#2#b", "evtime#a"} {
		require.NoError(t, s.Put(ctx, item("p", k, `{}`)))
	}

	got, err := s.ScanPrefix(ctx, "p", "evt#", store.ScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"evt#1#a", "evt#2#b", "evt#3#c"}, keys(got))

	all, err := s.ScanPrefix(ctx, "p", "", store.ScanOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func testScanUpperBound(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, k := range []string{"evt#1#a", "evt#2#b", "evt#3#c"} {
		require.NoError(t, s.Put(ctx, item("p", k, `{}`)))
	}

	got, err := s.ScanPrefix(ctx, "p", "evt#", store.ScanOptions{UpperBound: "evt#2#~"})
	require.NoError(t, err)
	assert.Equal(t, []string{"evt#1#a", "evt#2#b"}, keys(got))

	got, err = s.ScanPrefix(ctx, "p", "evt#", store.ScanOptions{UpperBound: "evt#2#b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"evt#1#a", "evt#2#b"}, keys(got), "upper bound is inclusive")
}

func testScanLimit(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := range 5 {
		require.NoError(t, s.Put(ctx, item("p", fmt.Sprintf("k%d", i), `{}`)))
	}
	got, err := s.ScanPrefix(ctx, "p", "k", store.ScanOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"k0", "k1"}, keys(got))
}

func testPartitionsIsolated(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, item("a", "k", `{"p":"a"}`)))
	require.NoError(t, s.Put(ctx, item("b", "k", `{"p":"b"}`)))

	got, err := s.ScanPrefix(ctx, "a", "", store.ScanOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"p":"a"}`, string(got[0].Data))

	got, err = s.ScanPrefix(ctx, "missing", "", store.ScanOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testOwnerIndex(t *testing.T, s store.Store) {
	ctx := context.Background()
	w1 := item("wld_1", "world", `{"n":1}`)
	w1.Owner = "usr_a"
	w2 := item("wld_2", "world", `{"n":2}`)
	w2.Owner = "usr_a"
	w3 := item("wld_3", "world", `{"n":3}`)
	w3.Owner = "usr_b"
	for _, it := range []store.Item{w2, w1, w3} {
		require.NoError(t, s.Put(ctx, it))
	}

	got, err := s.ListByOwner(ctx, "usr_a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "wld_1", got[0].Partition)
	assert.Equal(t, "wld_2", got[1].Partition)
	assert.Equal(t, "usr_a", got[0].Owner)

	// Re-owning moves the row between index entries.
	w1.Owner = "usr_b"
	require.NoError(t, s.Put(ctx, w1))
	got, err = s.ListByOwner(ctx, "usr_a")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, s.Delete(ctx, "wld_3", "world"))
	got, err = s.ListByOwner(ctx, "usr_b")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "wld_1", got[0].Partition)
}

func testWriteBatch(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, item("p", "old", `{}`)))

	err := s.WriteBatch(ctx, []store.Write{
		store.PutWrite(item("p", "a", `{"v":1}`)),
		store.PutWrite(item("q", "b", `{"v":2}`)),
		store.DeleteWrite("p", "old"),
	})
	require.NoError(t, err)

	_, err = s.Get(ctx, "p", "a")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "q", "b")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "p", "old")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.NoError(t, s.WriteBatch(ctx, nil))
}

func testWriteBatchTooLarge(t *testing.T, s store.Store) {
	writes := make([]store.Write, store.MaxBatchSize+1)
	for i := range writes {
		writes[i] = store.PutWrite(item("p", fmt.Sprintf("k%02d", i), `{}`))
	}
	err := s.WriteBatch(context.Background(), writes)
	assert.ErrorIs(t, err, store.ErrBatchTooLarge)

	got, err := s.ScanPrefix(context.Background(), "p", "", store.ScanOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testCompareAndPut(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CompareAndPut(ctx, item("p", "k", `{"v":1}`), nil))
	assert.ErrorIs(t, s.CompareAndPut(ctx, item("p", "k", `{"v":9}`), nil), store.ErrConditionFailed)

	require.NoError(t, s.CompareAndPut(ctx, item("p", "k", `{"v":2}`), []byte(`{"v":1}`)))
	assert.ErrorIs(t, s.CompareAndPut(ctx, item("p", "k", `{"v":3}`), []byte(`{"v":1}`)), store.ErrConditionFailed)

	got, err := s.Get(ctx, "p", "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got.Data))

	assert.ErrorIs(t, s.CompareAndPut(ctx, item("p", "missing", `{}`), []byte(`{}`)), store.ErrConditionFailed)
}

func testCanceledContext(t *testing.T, s store.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Put(ctx, item("p", "k", `{}`)), context.Canceled)
}
