// Package google ingests a directory laid out like Google's n-gram corpus
// release (spec.md §4.7 "counts path", §6.3): `1gms/vocab.gz`,
// `1gms/vocab_cs.gz`, and `<k>gms/<k>gm.idx` index files naming the
// per-shard data files to k-way merge.
package google

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ngram-lm/expgram/count"
	"github.com/ngram-lm/expgram/errs"
	"github.com/ngram-lm/expgram/vocab"
)

// normalize maps the Google layout's boundary-token spellings onto this
// module's canonical forms, case-insensitively, per spec.md §6.3.
func normalize(word string) string {
	switch strings.ToLower(word) {
	case "<s>":
		return "<s>"
	case "</s>":
		return "</s>"
	case "<unk>":
		return "<unk>"
	default:
		return word
	}
}

// Ingestor reads a Google-layout directory order by order.
type Ingestor struct {
	dir string
}

// NewIngestor creates an Ingestor over a directory containing `1gms/` and
// `<k>gms/` subdirectories.
func NewIngestor(dir string) *Ingestor {
	return &Ingestor{dir: dir}
}

// Vocab loads the order-1 vocabulary and counts from `1gms/vocab.gz`,
// normalising boundary-token spellings as it inserts each word.
func (g *Ingestor) Vocab() (*vocab.Vocab, []uint64, error) {
	v, counts, err := vocab.LoadGoogle(filepath.Join(g.dir, "1gms", "vocab.gz"))
	if err != nil {
		return nil, nil, err
	}
	return v, counts, nil
}

// ShardFiles reads `<order>gms/<order>gm.idx` and returns the absolute
// paths of every data file it names, in listing order.
func (g *Ingestor) ShardFiles(order int) ([]string, error) {
	idxPath := filepath.Join(g.dir, fmt.Sprintf("%dgms", order), fmt.Sprintf("%dgm.idx", order))
	f, err := os.Open(idxPath)
	if err != nil {
		return nil, errs.New(errs.IOError, "Ingestor.ShardFiles", err)
	}
	defer f.Close()

	var files []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		tab := strings.IndexByte(line, '\t')
		name := line
		if tab >= 0 {
			name = line[:tab]
		}
		files = append(files, filepath.Join(g.dir, fmt.Sprintf("%dgms", order), name))
	}
	if err := sc.Err(); err != nil {
		return nil, errs.New(errs.IOError, "Ingestor.ShardFiles", err)
	}
	return files, nil
}

// MergeOrder k-way merges order's shard files (normalising boundary
// tokens in each record's context) and invokes emit for every merged
// record in ascending order, per spec.md §4.7's "streams and k-way merges
// these by n-gram context".
func (g *Ingestor) MergeOrder(order int, emit func(count.Record) error) error {
	files, err := g.ShardFiles(order)
	if err != nil {
		return err
	}
	return count.MergeSorted(files, func(r count.Record) error {
		r.Tokens = normalizeContext(r.Tokens)
		return emit(r)
	})
}

func normalizeContext(tokens string) string {
	words := strings.Split(tokens, " ")
	for i, w := range words {
		words[i] = normalize(w)
	}
	return strings.Join(words, " ")
}

// Total reads the order-1 `total` file emitted by a prior Postprocess run
// (spec.md §4.7), the corpus-wide token count used to size watermark
// heuristics and sanity-check ingests.
func Total(dir string) (uint64, error) {
	data, err := os.ReadFile(filepath.Join(dir, "total"))
	if err != nil {
		return 0, errs.New(errs.IOError, "Total", err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, errs.New(errs.CorruptIndex, "Total", err)
	}
	return n, nil
}
