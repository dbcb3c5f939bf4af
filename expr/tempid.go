package expr

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultTempPrefix is the tag placed in front of every generated temp id.
const DefaultTempPrefix = "temp_"

// TempIDGenerator produces identifiers for entities that do not exist yet.
type TempIDGenerator interface {
	NextTempID() string
}

// TempIDFunc adapts a plain function to TempIDGenerator.
type TempIDFunc func() string

// NextTempID calls f.
func (f TempIDFunc) NextTempID() string { return f() }

// Sequence is a monotonic temp-id generator: prefix followed by 1, 2, 3...
// It is safe for concurrent use.
type Sequence struct {
	prefix string
	n      atomic.Uint64
}

// NewSequence creates a Sequence. An empty prefix uses DefaultTempPrefix.
func NewSequence(prefix string) *Sequence {
	if prefix == "" {
		prefix = DefaultTempPrefix
	}
	return &Sequence{prefix: prefix}
}

// NextTempID advances the sequence by exactly one.
func (s *Sequence) NextTempID() string {
	return s.prefix + strconv.FormatUint(s.n.Add(1), 10)
}

// Prefix returns the tag used by this sequence.
func (s *Sequence) Prefix() string { return s.prefix }

// UUIDGenerator produces prefix + random UUID. Ids never collide across
// processes, at the cost of not being ordered.
type UUIDGenerator struct {
	Prefix string
}

// NextTempID returns a new prefixed UUID.
func (g UUIDGenerator) NextTempID() string {
	prefix := g.Prefix
	if prefix == "" {
		prefix = DefaultTempPrefix
	}
	return prefix + uuid.NewString()
}

// IsTempID reports whether id carries the given temp prefix (DefaultTempPrefix
// when empty).
func IsTempID(id, prefix string) bool {
	if prefix == "" {
		prefix = DefaultTempPrefix
	}
	return len(id) > len(prefix) && strings.HasPrefix(id, prefix)
}
