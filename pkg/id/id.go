// Package id provides the time-ordered identifier used for every Message and
// Agent in the kernel.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

// ID is a time-ordered 128-bit unique identifier. Lexicographic ordering of
// its string form matches creation order, which the kernel relies on for
// Identifier uniqueness and ordering (see MessageStore invariants).
type ID [16]byte

// Nil is the zero value; never returned by New.
var Nil ID

// New generates a fresh, time-ordered ID using UUIDv7, whose first 48 bits
// are a millisecond Unix timestamp followed by random bits. Consecutive
// calls from the same process are monotonic at millisecond resolution,
// matching the "lexicographic order matches creation order" invariant.
func New() ID {
	u, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the global RNG is broken; fall back to V4
		// rather than panicking a library caller.
		u = uuid.New()
	}
	return ID(u)
}

// Parse decodes the canonical string form produced by String.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID(u), nil
}

// String returns the canonical hyphenated hex form.
func (i ID) String() string {
	return uuid.UUID(i).String()
}

// IsNil reports whether i is the zero ID.
func (i ID) IsNil() bool {
	return i == Nil
}

// Less reports whether i sorts before o in creation order. Because UUIDv7
// embeds a millisecond timestamp in its high bits, plain byte comparison is
// equivalent to chronological order.
func (i ID) Less(o ID) bool {
	for k := range i {
		if i[k] != o[k] {
			return i[k] < o[k]
		}
	}
	return false
}

// MarshalText implements encoding.TextMarshaler so IDs serialize as plain
// strings in JSON metadata.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
