// Package blockstore implements an on-disk block storage layer (spec.md
// §4.2); no other package of this module reads or writes through it.
// Blocks may be of any size, are compressed with a codec.Codec, and are
// read through a two-level cache: a lock-free
// direct-mapped DirectCache shared across workers, and a per-worker
// WorkerCache (ARC) for locality within one query goroutine.
//
// Grounded on storage.go's mmap-vs-os.Open dispatch and
// compactindexsized's Fadvise(RANDOM) warmup, generalized from one
// fixed-format index file to an arbitrary directory of compressed blocks.
package blockstore

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ngram-lm/expgram/codec"
	"github.com/ngram-lm/expgram/errs"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/exp/mmap"
	"golang.org/x/sys/unix"
)

// directoryEntry describes one stored block: its byte offset and length
// within the backing file, and the uncompressed size to pass as a
// decompress size hint.
type directoryEntry struct {
	offset   int64
	length   int64
	rawSize  int64
	checksum uint32
}

// Store is a read path over a directory of compressed blocks. It is safe
// for concurrent use by multiple goroutines.
type Store struct {
	reader    io.ReaderAt
	closer    io.Closer
	codec     codec.Codec
	directory []directoryEntry

	direct directMapCache

	workersMu sync.Mutex
	workers   map[uint64]*WorkerCache
	workerCap int
}

// OpenOptions configures Open.
type OpenOptions struct {
	// Mmap, when true, memory-maps the backing file instead of using
	// buffered os.File reads. Readers on the query hot path should set
	// this; writers building a fresh store should not.
	Mmap bool
	// DirectCacheSlots sizes the shared lock-free cache (rounded to a
	// power of two). Zero disables it. Ignored if SharedCacheBlocks > 0.
	DirectCacheSlots int
	// SharedCacheBlocks, if > 0, replaces the lock-free DirectCache with a
	// bigcache-backed SharedCache sized for roughly this many blocks,
	// shared by every goroutine reading through this Store (each Open
	// creates its own in-process cache).
	SharedCacheBlocks int
	// SharedCacheTTL bounds how long a SharedCache entry survives after
	// its last Put. Defaults to 10 minutes if zero.
	SharedCacheTTL time.Duration
	// WorkerCacheBlocks sizes each per-goroutine ARC cache. Zero disables
	// per-worker caching.
	WorkerCacheBlocks int
}

// Open opens a block store file previously written by a Writer.
func Open(path string, c codec.Codec, opts OpenOptions) (*Store, error) {
	var (
		reader io.ReaderAt
		closer io.Closer
	)
	if opts.Mmap {
		m, err := mmap.Open(path)
		if err != nil {
			return nil, errs.New(errs.IOError, "blockstore.Open", err)
		}
		fadviseRandom(path)
		reader, closer = m, m
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, errs.New(errs.IOError, "blockstore.Open", err)
		}
		reader, closer = f, f
	}

	dir, err := readDirectory(reader)
	if err != nil {
		closer.Close()
		return nil, err
	}

	s := &Store{
		reader:    reader,
		closer:    closer,
		codec:     c,
		directory: dir,
		workers:   make(map[uint64]*WorkerCache),
		workerCap: opts.WorkerCacheBlocks,
	}
	switch {
	case opts.SharedCacheBlocks > 0:
		ttl := opts.SharedCacheTTL
		if ttl == 0 {
			ttl = 10 * time.Minute
		}
		shared, err := NewSharedCache(opts.SharedCacheBlocks, ttl)
		if err != nil {
			closer.Close()
			return nil, errs.New(errs.IOError, "blockstore.Open", err)
		}
		s.direct = shared
	case opts.DirectCacheSlots > 0:
		s.direct = NewDirectCache(opts.DirectCacheSlots)
	}
	return s, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	return s.closer.Close()
}

// NumBlocks returns the number of blocks in the store.
func (s *Store) NumBlocks() int { return len(s.directory) }

// Read returns the decompressed contents of block id. workerKey identifies
// the calling goroutine's WorkerCache (callers typically pass a
// goroutine-stable id, e.g. a shard worker index). Every key, 0 included,
// gets its own WorkerCache; per-worker caching is off only when the Store
// was opened with WorkerCacheBlocks == 0.
func (s *Store) Read(id int, workerKey uint64) ([]byte, error) {
	if id < 0 || id >= len(s.directory) {
		return nil, errs.New(errs.CorruptIndex, "blockstore.Read", fmt.Errorf("block id %d out of range", id))
	}
	cacheKey := uint64(id)

	if s.direct != nil {
		if block, ok := s.direct.Get(cacheKey); ok {
			return block, nil
		}
	}

	var wc *WorkerCache
	if s.workerCap > 0 {
		wc = s.workerFor(workerKey)
		if block, ok := wc.Get(cacheKey); ok {
			return block, nil
		}
	}

	entry := s.directory[id]
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.Reset()
	if cap(buf.B) < int(entry.length) {
		buf.B = make([]byte, entry.length)
	} else {
		buf.B = buf.B[:entry.length]
	}
	if _, err := s.reader.ReadAt(buf.B, entry.offset); err != nil {
		return nil, errs.New(errs.IOError, "blockstore.Read", err)
	}

	block, err := s.codec.Decompress(buf.B, int(entry.rawSize))
	if err != nil {
		return nil, errs.New(errs.CorruptBlock, "blockstore.Read", err)
	}

	if s.direct != nil {
		s.direct.Put(cacheKey, block)
	}
	if wc != nil {
		wc.Put(cacheKey, block)
	}
	return block, nil
}

func (s *Store) workerFor(key uint64) *WorkerCache {
	s.workersMu.Lock()
	defer s.workersMu.Unlock()
	wc, ok := s.workers[key]
	if !ok {
		wc = NewWorkerCache(s.workerCap)
		s.workers[key] = wc
	}
	return wc
}

// fadviseRandom hints the kernel that this store's access pattern is random,
// matching compactindexsized/query.go's FADV_RANDOM warmup for mmap'd index
// files. Best-effort: failures (e.g. non-Linux, or a reader that isn't
// backed by a real fd) are ignored.
func fadviseRandom(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_RANDOM)
}

// directoryMagic tags the 8-byte header of a block store file.
var directoryMagic = [8]byte{'e', 'x', 'p', 'g', 'b', 'l', 'k', '1'}

func readDirectory(r io.ReaderAt) ([]directoryEntry, error) {
	var head [16]byte
	if _, err := r.ReadAt(head[:], 0); err != nil {
		return nil, errs.New(errs.IOError, "blockstore.readDirectory", err)
	}
	if [8]byte(head[:8]) != directoryMagic {
		return nil, errs.New(errs.CorruptIndex, "blockstore.readDirectory", fmt.Errorf("bad magic"))
	}
	count := binary.LittleEndian.Uint64(head[8:16])

	const entrySize = 8 + 8 + 8 + 4
	buf := make([]byte, int(count)*entrySize)
	if len(buf) > 0 {
		if _, err := r.ReadAt(buf, 16); err != nil {
			return nil, errs.New(errs.IOError, "blockstore.readDirectory", err)
		}
	}

	entries := make([]directoryEntry, count)
	for i := range entries {
		b := buf[i*entrySize:]
		entries[i] = directoryEntry{
			offset:   int64(binary.LittleEndian.Uint64(b[0:8])),
			length:   int64(binary.LittleEndian.Uint64(b[8:16])),
			rawSize:  int64(binary.LittleEndian.Uint64(b[16:24])),
			checksum: binary.LittleEndian.Uint32(b[24:28]),
		}
	}
	return entries, nil
}
