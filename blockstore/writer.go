package blockstore

import (
	"encoding/binary"
	"hash/crc32"
	"os"

	"github.com/ngram-lm/expgram/codec"
	"github.com/ngram-lm/expgram/errs"
)

// Writer builds a block store file: a directory of (offset, length,
// rawSize, checksum) tuples followed by the compressed block payloads.
// Writer is not safe for concurrent use; callers serialize Append and
// Close.
type Writer struct {
	f     *os.File
	codec codec.Codec

	entries []directoryEntry
	payload []byte
}

// NewWriter creates a Writer that will produce its file at path once
// Close is called.
func NewWriter(path string, c codec.Codec) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errs.New(errs.IOError, "blockstore.NewWriter", err)
	}
	return &Writer{f: f, codec: c}, nil
}

// Append compresses block and records it, returning its assigned block id.
func (w *Writer) Append(block []byte) (int, error) {
	compressed, err := w.codec.Compress(block)
	if err != nil {
		return 0, errs.New(errs.IOError, "blockstore.Append", err)
	}
	entry := directoryEntry{
		offset:   int64(len(w.payload)),
		length:   int64(len(compressed)),
		rawSize:  int64(len(block)),
		checksum: crc32.ChecksumIEEE(block),
	}
	w.payload = append(w.payload, compressed...)
	w.entries = append(w.entries, entry)
	return len(w.entries) - 1, nil
}

// Close writes the directory and payload to disk and closes the file.
func (w *Writer) Close() error {
	defer w.f.Close()

	const entrySize = 8 + 8 + 8 + 4
	head := make([]byte, 16+len(w.entries)*entrySize)
	copy(head[0:8], directoryMagic[:])
	binary.LittleEndian.PutUint64(head[8:16], uint64(len(w.entries)))

	// Directory offsets are recorded relative to the start of the payload
	// region; rebase them by the directory's own length before writing.
	dirLen := int64(len(head))
	for i, e := range w.entries {
		b := head[16+i*entrySize:]
		binary.LittleEndian.PutUint64(b[0:8], uint64(e.offset+dirLen))
		binary.LittleEndian.PutUint64(b[8:16], uint64(e.length))
		binary.LittleEndian.PutUint64(b[16:24], uint64(e.rawSize))
		binary.LittleEndian.PutUint32(b[24:28], e.checksum)
	}

	if _, err := w.f.Write(head); err != nil {
		return errs.New(errs.IOError, "blockstore.Close", err)
	}
	if _, err := w.f.Write(w.payload); err != nil {
		return errs.New(errs.IOError, "blockstore.Close", err)
	}
	return nil
}
