package store

import "io"

// Iterator walks keys in lexicographic order. An iterator must not be used
// concurrently, but multiple independent iterators may be open at once.
type Iterator interface {
	io.Closer

	// Valid reports whether the iterator is positioned at a record.
	Valid() bool
	// First seeks to the first record in range.
	First() bool
	// Prev moves to the previous record.
	Prev() bool
	// Next moves to the next record.
	Next() bool
	// Key returns the current record's key.
	Key() []byte
	// Value returns the current record's value.
	Value() ([]byte, error)
	// Seek positions at the first record >= key.
	Seek(key []byte) bool
}

// Iterable produces Iterators scoped to a key prefix.
type Iterable interface {
	// NewIterator returns an iterator over all keys sharing prefix. If
	// withUpperBound is true, the iterator is bounded to keys lexically
	// less than the prefix's successor, so it never runs past the prefix's
	// own keyspace.
	NewIterator(prefix []byte, withUpperBound bool) (Iterator, error)
}
