package store

import "strings"

// Item is one stored row. Owner, when set, places the row in the owner
// secondary index.
type Item struct {
	Partition string
	SortKey   string
	Owner     string
	Data      []byte
}

type Op int

const (
	OpPut Op = iota
	OpDelete
)

func (o Op) String() string {
	if o == OpDelete {
		return "delete"
	}
	return "put"
}

// Write is one row of a batch. Delete writes only use the item's
// partition and sort key.
type Write struct {
	Op   Op
	Item Item
}

func PutWrite(item Item) Write {
	return Write{Op: OpPut, Item: item}
}

func DeleteWrite(partition, sortKey string) Write {
	return Write{Op: OpDelete, Item: Item{Partition: partition, SortKey: sortKey}}
}

// ScanOptions narrows a prefix scan. UpperBound, if set, is inclusive.
type ScanOptions struct {
	UpperBound string
	Limit      int
}

// PrefixEnd returns the smallest key greater than every key starting with
// prefix, given that keys only use printable ASCII.
func PrefixEnd(prefix string) string {
	return prefix + "\x7f"
}

// InRange reports whether key satisfies the prefix and upper bound of a scan.
func InRange(key, prefix string, opts ScanOptions) bool {
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	return opts.UpperBound == "" || key <= opts.UpperBound
}
