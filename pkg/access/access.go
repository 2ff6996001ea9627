// Package access defines the five access operations a permission can grant and the
// compact one-character-per-operation string form they are stored in.
package access

import (
	"errors"
	"fmt"
	"strings"
)

// Type is one of the five access operations.
type Type int

const (
	Create Type = iota
	Read
	Update
	Delete
	Execute
)

// ErrUnknownAccessCode is returned when a permission string contains a character that
// does not name an access type. It signals corrupt permission data.
var ErrUnknownAccessCode = errors.New("unknown access code")

// UnknownCodeError carries the offending character of a failed decode.
type UnknownCodeError struct {
	Code byte
}

func (e *UnknownCodeError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownAccessCode, e.Code)
}

func (e *UnknownCodeError) Unwrap() error {
	return ErrUnknownAccessCode
}

var types = [...]struct {
	code byte
	name string
}{
	Create:  {'C', "create"},
	Read:    {'R', "read"},
	Update:  {'U', "update"},
	Delete:  {'D', "delete"},
	Execute: {'X', "execute"},
}

// Types returns every access type in canonical order.
func Types() []Type {
	return []Type{Create, Read, Update, Delete, Execute}
}

// Code returns the single-character code of t.
func (t Type) Code() byte {
	return types[t].code
}

// String returns the lower-case name of t ("create", "read", ...).
func (t Type) String() string {
	if t < Create || t > Execute {
		return fmt.Sprintf("access.Type(%d)", int(t))
	}
	return types[t].name
}

// MarshalText encodes t by name so JSON payloads stay readable.
func (t Type) MarshalText() ([]byte, error) {
	if t < Create || t > Execute {
		return nil, fmt.Errorf("invalid access type %d", int(t))
	}
	return []byte(types[t].name), nil
}

// FromCode maps a single-character code back to its access type.
func FromCode(c byte) (Type, error) {
	for t, def := range types {
		if def.code == c {
			return Type(t), nil
		}
	}
	return 0, &UnknownCodeError{Code: c}
}

// ParseName maps a lower-case name ("read") to its access type.
func ParseName(name string) (Type, error) {
	for t, def := range types {
		if def.name == strings.ToLower(name) {
			return Type(t), nil
		}
	}
	return 0, fmt.Errorf("unknown access type name %q", name)
}

// Set is an immutable set of access types.
type Set uint8

// All returns the set containing every access type.
func All() Set {
	return NewSet(Types()...)
}

// NewSet builds a set from the given types.
func NewSet(ts ...Type) Set {
	var s Set
	for _, t := range ts {
		s = s.Add(t)
	}
	return s
}

// Add returns s with t included.
func (s Set) Add(t Type) Set {
	return s | 1<<uint(t)
}

// Has reports whether t is in s.
func (s Set) Has(t Type) bool {
	return s&(1<<uint(t)) != 0
}

// Union returns the set of types in s or o.
func (s Set) Union(o Set) Set {
	return s | o
}

// Len returns the number of types in s.
func (s Set) Len() int {
	n := 0
	for _, t := range Types() {
		if s.Has(t) {
			n++
		}
	}
	return n
}

// Types lists the members of s in canonical order.
func (s Set) Types() []Type {
	out := make([]Type, 0, 5)
	for _, t := range Types() {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// String returns the canonical code string of s, e.g. "CRU".
func (s Set) String() string {
	return Encode(s)
}

// Encode renders s as a code string in canonical CRUDX order.
func Encode(s Set) string {
	var b strings.Builder
	for _, t := range s.Types() {
		b.WriteByte(t.Code())
	}
	return b.String()
}

// Decode maps every character of a permission string to its access type. Order and
// repetition do not matter. A single unknown character fails the whole decode.
func Decode(s string) (Set, error) {
	var set Set
	for i := 0; i < len(s); i++ {
		t, err := FromCode(s[i])
		if err != nil {
			return 0, err
		}
		set = set.Add(t)
	}
	return set, nil
}
