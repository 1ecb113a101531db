package vecindex

import "fmt"

// Kind classifies a failure by the collaborator that caused it.
type Kind int

const (
	// KindBackend is a failure of the table: schema, query or execution.
	KindBackend Kind = iota + 1
	// KindDecoding is a row that could not be mapped onto the payload type.
	KindDecoding
	// KindEmbedding is a failure of the embedding model.
	KindEmbedding
)

func (k Kind) String() string {
	switch k {
	case KindBackend:
		return "backend"
	case KindDecoding:
		return "decoding"
	case KindEmbedding:
		return "embedding"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching on the failure kind.
var (
	ErrBackend   = &Error{Kind: KindBackend}
	ErrDecoding  = &Error{Kind: KindDecoding}
	ErrEmbedding = &Error{Kind: KindEmbedding}
)

// Error is returned by every Index operation. The cause stays reachable
// through errors.Is and errors.As.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return "vecindex: " + e.Kind.String() + " error"
	case e.Err == nil:
		return fmt.Sprintf("vecindex: %s: %s error", e.Op, e.Kind)
	default:
		return fmt.Sprintf("vecindex: %s: %s error: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Kind == e.Kind
}

func backendError(op string, err error) error {
	return &Error{Kind: KindBackend, Op: op, Err: err}
}

func decodingError(op string, err error) error {
	return &Error{Kind: KindDecoding, Op: op, Err: err}
}

func embeddingError(op string, err error) error {
	return &Error{Kind: KindEmbedding, Op: op, Err: err}
}
