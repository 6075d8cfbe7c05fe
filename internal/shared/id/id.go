// Package id generates prefixed, time-sortable ULID identifiers.
//
// Executions, HTTP requests and trace spans each get their own prefix so
// log lines stay readable:
//
//	exec_01HZX3...   one sandbox execution
//	req_01HZX3...    one inbound HTTP request
//	span_01HZX3...   one tracing span
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ExecutionID identifies one sandbox execution
type ExecutionID string

// RequestID identifies an inbound API request
type RequestID string

// SpanID identifies a tracing span
type SpanID string

const (
	ExecutionPrefix = "exec"
	RequestPrefix   = "req"
	SpanPrefix      = "span"
)

// Generator produces ULIDs from a single entropy source
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand with monotonic
// ordering inside the same millisecond
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewGeneratorWithEntropy creates a generator with a caller-supplied entropy
// source, for deterministic tests
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// WithPrefix creates a "prefix_ULID" string
func (g *Generator) WithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewExecutionID generates an execution ID
func NewExecutionID() ExecutionID {
	return ExecutionID(Default().WithPrefix(ExecutionPrefix))
}

// NewRequestID generates a request ID
func NewRequestID() RequestID {
	return RequestID(Default().WithPrefix(RequestPrefix))
}

// NewSpanID generates a span ID
func NewSpanID() SpanID {
	return SpanID(Default().WithPrefix(SpanPrefix))
}

func (id ExecutionID) String() string { return string(id) }
func (id RequestID) String() string   { return string(id) }
func (id SpanID) String() string      { return string(id) }

// Split separates a prefixed ID into its prefix and ULID parts
func Split(s string) (prefix string, u ulid.ULID, err error) {
	i := strings.LastIndexByte(s, '_')
	if i < 0 {
		return "", ulid.ULID{}, fmt.Errorf("id %q has no prefix", s)
	}
	u, err = ulid.Parse(s[i+1:])
	if err != nil {
		return "", ulid.ULID{}, fmt.Errorf("id %q: %w", s, err)
	}
	return s[:i], u, nil
}

// Timestamp extracts the creation time of a prefixed ID
func Timestamp(s string) (time.Time, error) {
	_, u, err := Split(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
