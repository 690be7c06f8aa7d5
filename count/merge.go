package count

import (
	"bufio"
	"compress/gzip"
	"container/heap"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ngram-lm/expgram/errs"
)

// Record is one decoded "tokens\tcount" line from a count file.
type Record struct {
	Tokens string // space-separated words, the sort key
	Count  uint64
}

// fileCursor reads one count file's records in order, used as a heap item
// during the k-way merge (grounded on store/index/recordlist.go's bucketed
// listing merge).
type fileCursor struct {
	sc      *bufio.Scanner
	gz      *gzip.Reader
	f       *os.File
	current Record
	done    bool
}

func openCursor(path string) (*fileCursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.IOError, "openCursor", err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errs.New(errs.IOError, "openCursor", err)
	}
	c := &fileCursor{sc: bufio.NewScanner(gz), gz: gz, f: f}
	c.advance()
	return c, nil
}

func (c *fileCursor) advance() {
	if !c.sc.Scan() {
		c.done = true
		return
	}
	line := c.sc.Text()
	tab := strings.LastIndexByte(line, '\t')
	if tab < 0 {
		c.done = true
		return
	}
	n, err := strconv.ParseUint(line[tab+1:], 10, 64)
	if err != nil {
		c.done = true
		return
	}
	c.current = Record{Tokens: line[:tab], Count: n}
}

func (c *fileCursor) close() {
	c.gz.Close()
	c.f.Close()
}

// cursorHeap orders open files by their current record's sort key.
type cursorHeap []*fileCursor

func (h cursorHeap) Len() int            { return len(h) }
func (h cursorHeap) Less(i, j int) bool  { return h[i].current.Tokens < h[j].current.Tokens }
func (h cursorHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x interface{}) { *h = append(*h, x.(*fileCursor)) }
func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MergeSorted k-way merges already-sorted count files (flushed temp files
// or Google-layout shard files) into a single sorted sequence, summing
// counts for duplicate context lines across files, and invokes emit for
// each merged record in ascending order (spec.md §4.7: "streams and k-way
// merges these by n-gram context").
func MergeSorted(paths []string, emit func(Record) error) error {
	h := make(cursorHeap, 0, len(paths))
	for _, p := range paths {
		c, err := openCursor(p)
		if err != nil {
			return err
		}
		if c.done {
			c.close()
			continue
		}
		h = append(h, c)
	}
	heap.Init(&h)
	defer func() {
		for _, c := range h {
			c.close()
		}
	}()

	for h.Len() > 0 {
		top := h[0]
		merged := top.current
		top.advance()
		if top.done {
			heap.Pop(&h)
			top.close()
		} else {
			heap.Fix(&h, 0)
		}

		for h.Len() > 0 && h[0].current.Tokens == merged.Tokens {
			dup := h[0]
			merged.Count += dup.current.Count
			dup.advance()
			if dup.done {
				heap.Pop(&h)
				dup.close()
			} else {
				heap.Fix(&h, 0)
			}
		}

		if err := emit(merged); err != nil {
			return err
		}
	}
	return nil
}

// Postprocess emits, for one order's merged count stream, a shard `index`
// listing file (one line per shard file naming its lexicographically-least
// n-gram) by splitting the stream into fixed-size shard files as it is
// written; for order 1 it additionally emits vocab.gz (alphabetical),
// vocab_cs.gz (count-sorted), and a `total` file, per spec.md §4.7.
func Postprocess(dir string, order int, recordsPerShard int, records []Record) error {
	orderDir := filepath.Join(dir, fmt.Sprintf("%dgms", order))
	if err := os.MkdirAll(orderDir, 0o755); err != nil {
		return errs.New(errs.IOError, "Postprocess", err)
	}

	var index []string
	for start := 0; start < len(records); start += recordsPerShard {
		end := start + recordsPerShard
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]
		shardPath := filepath.Join(orderDir, fmt.Sprintf("%dgm-%04d.gz", order, start/recordsPerShard))
		if err := writeGzRecords(shardPath, chunk); err != nil {
			return err
		}
		index = append(index, fmt.Sprintf("%s\t%s\n", filepath.Base(shardPath), chunk[0].Tokens))
	}

	idxPath := filepath.Join(orderDir, fmt.Sprintf("%dgm.idx", order))
	if err := writeLines(idxPath, index); err != nil {
		return err
	}

	if order != 1 {
		return nil
	}
	return postprocessOrder1(dir, records)
}

func postprocessOrder1(dir string, records []Record) error {
	vocabDir := filepath.Join(dir, "1gms")
	if err := os.MkdirAll(vocabDir, 0o755); err != nil {
		return errs.New(errs.IOError, "postprocessOrder1", err)
	}

	alpha := make([]Record, len(records))
	copy(alpha, records)
	if err := writeGzRecords(filepath.Join(vocabDir, "vocab.gz"), alpha); err != nil {
		return err
	}

	byCount := make([]Record, len(records))
	copy(byCount, records)
	sortByCountDesc(byCount)
	if err := writeGzRecords(filepath.Join(vocabDir, "vocab_cs.gz"), byCount); err != nil {
		return err
	}

	var total uint64
	for _, r := range records {
		total += r.Count
	}
	return writeLines(filepath.Join(dir, "total"), []string{fmt.Sprintf("%d\n", total)})
}

func sortByCountDesc(records []Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].Count > records[j].Count })
}

func writeGzRecords(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.New(errs.IOError, "writeGzRecords", err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	w := bufio.NewWriter(gz)
	for _, r := range records {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", r.Tokens, r.Count); err != nil {
			return errs.New(errs.IOError, "writeGzRecords", err)
		}
	}
	if err := w.Flush(); err != nil {
		return errs.New(errs.IOError, "writeGzRecords", err)
	}
	return gz.Close()
}

func writeLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.New(errs.IOError, "writeLines", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := w.WriteString(l); err != nil {
			return errs.New(errs.IOError, "writeLines", err)
		}
	}
	return w.Flush()
}
