package cache

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// CBOR encoding/decoding options configured for security and determinism.
var (
	// encMode sorts keys canonically so equal entries encode to equal bytes
	encMode cbor.EncMode

	// decMode caps collection sizes and nesting of untrusted stored data
	decMode cbor.DecMode
)

//nolint:gochecknoinits // Required for CBOR mode configuration at package load time
func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoding mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		MaxArrayElements: 10000, // Prevent DoS from huge arrays
		MaxMapPairs:      10000, // Prevent DoS from huge maps
		MaxNestedLevels:  16,    // Prevent stack overflow
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoding mode: %v", err))
	}
}

// Entry is a stored HTTP response. Only the wire parts are kept; the parsed
// body is rebuilt from Body when the entry is served.
type Entry struct {
	StatusCode int                 `cbor:"1,keyasint"`
	Headers    map[string][]string `cbor:"2,keyasint,omitempty"`
	Body       []byte              `cbor:"3,keyasint,omitempty"`
	URL        string              `cbor:"4,keyasint"`
	StoredAt   time.Time           `cbor:"5,keyasint"`
	// Vary holds the request values of the headers named by the response Vary
	// header, keyed by canonical header name
	Vary map[string]string `cbor:"6,keyasint,omitempty"`
	// Shared marks a response that may be served to requests carrying credentials
	Shared bool `cbor:"7,keyasint,omitempty"`
}

// MatchesVary reports whether a request presenting the given header values
// selects this entry
func (e *Entry) MatchesVary(value func(name string) string) bool {
	for name, stored := range e.Vary {
		if value(name) != stored {
			return false
		}
	}
	return true
}

// Age returns how long ago the entry was stored
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// EncodeEntry serializes an entry for storage
func EncodeEntry(e *Entry) ([]byte, error) {
	return Marshal(e)
}

// DecodeEntry deserializes a stored entry. Malformed data yields ErrCorruptEntry.
func DecodeEntry(data []byte) (*Entry, error) {
	e, err := Unmarshal[*Entry](data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if e == nil {
		return nil, ErrCorruptEntry
	}
	return e, nil
}

// Marshal serializes a value to CBOR bytes.
//
//	type User struct {
//	    ID   int64  `cbor:"1,keyasint"`  // integer keys encode smaller
//	    Name string `cbor:"2,keyasint"`
//	}
//	data, err := cache.Marshal(User{ID: 123, Name: "Alice"})
func Marshal[T any](v T) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor marshal failed: %w", err)
	}
	return data, nil
}

// Unmarshal deserializes CBOR bytes into a value of type T.
// For pointer types use Unmarshal[*User](data).
func Unmarshal[T any](data []byte) (T, error) {
	var v T
	if err := decMode.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("cbor unmarshal failed: %w", err)
	}
	return v, nil
}

// MustMarshal is like Marshal but panics on error. Meant for tests.
func MustMarshal[T any](v T) []byte {
	data, err := Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("MustMarshal failed: %v", err))
	}
	return data
}
