// Package errs defines the typed error kinds shared across the engine's
// pipeline stages and query path.
package errs

import "errors"

// Kind identifies one of the error categories in the on-disk/runtime
// contract. Callers should prefer errors.Is / errors.As over comparing
// Kind directly, since wrapped errors carry additional context.
type Kind int

const (
	_ Kind = iota
	IOError
	CorruptIndex
	CorruptBlock
	VocabMiss
	ShardMismatch
	Numeric
)

func (k Kind) String() string {
	switch k {
	case IOError:
		return "IO_ERROR"
	case CorruptIndex:
		return "CORRUPT_INDEX"
	case CorruptBlock:
		return "CORRUPT_BLOCK"
	case VocabMiss:
		return "VOCAB_MISS"
	case ShardMismatch:
		return "SHARD_MISMATCH"
	case Numeric:
		return "NUMERIC"
	default:
		return "UNKNOWN"
	}
}

// Error wraps an underlying cause with a Kind, so that callers can recover
// the category with errors.As while still seeing the original message via
// Unwrap/Error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + ": " + e.Op
	}
	return e.Kind.String() + ": " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Is reports whether err (or something it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

var (
	// ErrNotFound marks a missing key in a lookup structure (trie find,
	// vocab lookup, index lookup). Not a Kind on its own: callers wrap it
	// with the appropriate Kind where one applies (e.g. VocabMiss).
	ErrNotFound = errors.New("not found")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
