package store

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// PebbleConfig configures the cockroachdb/pebble-backed KeyValueStore. Field
// names follow the configuration options enumerated in the spec's external
// interfaces section.
type PebbleConfig struct {
	// Memory, when true, backs the store with an in-memory filesystem; no
	// data survives process exit. Location is ignored in this mode.
	Memory bool
	// Location is the directory pebble will use for its on-disk files.
	// Ignored when Memory is true.
	Location string
	// MaxFiles bounds the number of open file descriptors pebble may hold.
	MaxFiles int
	// CacheSize is the block cache size in bytes.
	CacheSize int64
	// Compression enables block compression (Snappy) when true.
	Compression bool
}

var writeOpts = &pebble.WriteOptions{Sync: true}

// pebbleStore is the store.KeyValueStore implementation backed by pebble.
type pebbleStore struct {
	db     *pebble.DB
	cache  *pebble.Cache
	closed sync.Once
}

// OpenPebble opens (or creates) a pebble-backed KeyValueStore per cfg.
func OpenPebble(cfg PebbleConfig) (KeyValueStore, error) {
	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 64
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 16 * 1024 * 1024
	}

	cache := pebble.NewCache(cacheSize)
	opts := &pebble.Options{
		Cache:        cache,
		MaxOpenFiles: maxFiles,
	}
	if cfg.Compression {
		for i := range opts.Levels {
			opts.Levels[i].Compression = pebble.SnappyCompression
		}
	} else {
		for i := range opts.Levels {
			opts.Levels[i].Compression = pebble.NoCompression
		}
	}

	path := cfg.Location
	if cfg.Memory {
		opts.FS = vfs.NewMem()
		path = ""
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		cache.Unref()
		return nil, fmt.Errorf("store: open pebble: %w", err)
	}

	log.Infof("opened pebble store at %q (memory=%v, maxFiles=%d, cacheSize=%d)",
		cfg.Location, cfg.Memory, maxFiles, cacheSize)

	return &pebbleStore{db: db, cache: cache}, nil
}

func (s *pebbleStore) Has(key []byte) (bool, error) {
	v, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	_ = v
	return true, nil
}

func (s *pebbleStore) Get(key []byte, cb func(value []byte) error) error {
	v, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return ErrKeyNotFound
	}
	if err != nil {
		return err
	}
	defer closer.Close()
	return cb(v)
}

func (s *pebbleStore) Put(key, value []byte) error {
	return s.db.Set(key, value, writeOpts)
}

func (s *pebbleStore) Delete(key []byte) error {
	return s.db.Delete(key, writeOpts)
}

func (s *pebbleStore) DeleteRange(start, end []byte) error {
	return s.db.DeleteRange(start, end, writeOpts)
}

func (s *pebbleStore) NewBatch() Batch {
	return &pebbleBatch{b: s.db.NewBatch()}
}

func (s *pebbleStore) NewBatchWithSize(size int) Batch {
	return &pebbleBatch{b: s.db.NewBatchWithSize(size)}
}

func (s *pebbleStore) NewIndexedBatch() IndexedBatch {
	return &pebbleIndexedBatch{pebbleBatch{b: s.db.NewIndexedBatch()}}
}

func (s *pebbleStore) NewIndexedBatchWithSize(size int) IndexedBatch {
	return &pebbleIndexedBatch{pebbleBatch{b: s.db.NewIndexedBatchWithSize(size)}}
}

func (s *pebbleStore) NewSnapshot() Snapshot {
	return &pebbleSnapshot{snap: s.db.NewSnapshot()}
}

func (s *pebbleStore) NewIterator(prefix []byte, withUpperBound bool) (Iterator, error) {
	return newPebbleIterator(s.db, prefix, withUpperBound)
}

func (s *pebbleStore) Update(fn func(IndexedBatch) error) error {
	b := s.NewIndexedBatch()
	if err := fn(b); err != nil {
		b.Reset()
		return err
	}
	return b.Write()
}

func (s *pebbleStore) View(fn func(Snapshot) error) error {
	snap := s.NewSnapshot()
	defer snap.Close()
	return fn(snap)
}

func (s *pebbleStore) Verify(tagKey []byte, want []byte) (bool, error) {
	var match bool
	err := s.Get(tagKey, func(value []byte) error {
		match = bytes.Equal(value, want)
		return nil
	})
	if err == ErrKeyNotFound {
		if err := s.Put(tagKey, want); err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return match, nil
}

func (s *pebbleStore) Close() error {
	var err error
	s.closed.Do(func() {
		err = s.db.Close()
		s.cache.Unref()
	})
	return err
}

// prefixUpperBound returns the smallest key that is lexically greater than
// every key sharing prefix, i.e. prefix's successor under byte-string
// ordering. A prefix of all 0xff bytes has no successor and yields nil
// (meaning "no upper bound").
func prefixUpperBound(prefix []byte) []byte {
	ub := make([]byte, len(prefix))
	copy(ub, prefix)
	for i := len(ub) - 1; i >= 0; i-- {
		ub[i]++
		if ub[i] != 0 {
			return ub[:i+1]
		}
	}
	return nil
}

type pebbleBatch struct {
	b *pebble.Batch
}

func (p *pebbleBatch) Put(key, value []byte) error   { return p.b.Set(key, value, nil) }
func (p *pebbleBatch) Delete(key []byte) error        { return p.b.Delete(key, nil) }
func (p *pebbleBatch) DeleteRange(s, e []byte) error  { return p.b.DeleteRange(s, e, nil) }
func (p *pebbleBatch) Size() int                      { return int(p.b.Len()) }
func (p *pebbleBatch) Write() error                   { return p.b.Commit(writeOpts) }
func (p *pebbleBatch) Reset()                         { p.b.Reset() }

type pebbleIndexedBatch struct {
	pebbleBatch
}

func (p *pebbleIndexedBatch) Has(key []byte) (bool, error) {
	_, closer, err := p.b.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

func (p *pebbleIndexedBatch) Get(key []byte, cb func(value []byte) error) error {
	v, closer, err := p.b.Get(key)
	if err == pebble.ErrNotFound {
		return ErrKeyNotFound
	}
	if err != nil {
		return err
	}
	defer closer.Close()
	return cb(v)
}

func (p *pebbleIndexedBatch) NewIterator(prefix []byte, withUpperBound bool) (Iterator, error) {
	return newPebbleIterator(p.b, prefix, withUpperBound)
}

type pebbleSnapshot struct {
	snap *pebble.Snapshot
}

func (p *pebbleSnapshot) Has(key []byte) (bool, error) {
	v, closer, err := p.snap.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	_ = v
	return true, nil
}

func (p *pebbleSnapshot) Get(key []byte, cb func(value []byte) error) error {
	v, closer, err := p.snap.Get(key)
	if err == pebble.ErrNotFound {
		return ErrKeyNotFound
	}
	if err != nil {
		return err
	}
	defer closer.Close()
	return cb(v)
}

func (p *pebbleSnapshot) NewIterator(prefix []byte, withUpperBound bool) (Iterator, error) {
	return newPebbleIterator(p.snap, prefix, withUpperBound)
}

func (p *pebbleSnapshot) Close() error {
	return p.snap.Close()
}

// pebbleReader is the subset of *pebble.DB/*pebble.Batch/*pebble.Snapshot
// needed to construct an iterator.
type pebbleReader interface {
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

type pebbleIterator struct {
	it *pebble.Iterator
}

func newPebbleIterator(r pebbleReader, prefix []byte, withUpperBound bool) (Iterator, error) {
	opts := &pebble.IterOptions{LowerBound: prefix}
	if withUpperBound {
		opts.UpperBound = prefixUpperBound(prefix)
	}
	it, err := r.NewIter(opts)
	if err != nil {
		return nil, err
	}
	return &pebbleIterator{it: it}, nil
}

func (p *pebbleIterator) Valid() bool        { return p.it.Valid() }
func (p *pebbleIterator) First() bool        { return p.it.First() }
func (p *pebbleIterator) Prev() bool         { return p.it.Prev() }
func (p *pebbleIterator) Next() bool         { return p.it.Next() }
func (p *pebbleIterator) Key() []byte        { return p.it.Key() }
func (p *pebbleIterator) Seek(key []byte) bool { return p.it.SeekGE(key) }
func (p *pebbleIterator) Close() error       { return p.it.Close() }

func (p *pebbleIterator) Value() ([]byte, error) {
	v := p.it.Value()
	if err := p.it.Error(); err != nil {
		return nil, err
	}
	return v, nil
}
