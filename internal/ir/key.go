package ir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Key identifies a distinct read. It is an ordered tuple of primitive
// values; two keys are the same query iff every element is equal in order
// and in type (IRString("1") and IRInt(1) differ).
//
// A Key also serves as an invalidation pattern: a pattern matches every key
// that begins with its elements.
type Key []IRValue

// NewKey builds a Key from strings, ints, int64s and bools.
func NewKey(parts ...any) (Key, error) {
	k := make(Key, 0, len(parts))
	for i, p := range parts {
		switch v := p.(type) {
		case string:
			k = append(k, IRString(v))
		case int:
			k = append(k, IRInt(v))
		case int64:
			k = append(k, IRInt(v))
		case bool:
			k = append(k, IRBool(v))
		case IRString, IRInt, IRBool:
			k = append(k, v.(IRValue))
		default:
			return nil, fmt.Errorf("key element %d: unsupported type %T", i, p)
		}
	}
	return k, nil
}

// K is like NewKey but panics on unsupported element types.
// Use for keys declared in code.
func K(parts ...any) Key {
	k, err := NewKey(parts...)
	if err != nil {
		panic(err)
	}
	return k
}

// ParseKey parses the slash form used on the command line and in config
// files ("doctors/pending"). Segments that parse as integers become IRInt,
// "true"/"false" become IRBool, everything else is an IRString.
func ParseKey(s string) (Key, error) {
	s = strings.Trim(s, "/")
	if s == "" {
		return nil, fmt.Errorf("empty key")
	}
	segs := strings.Split(s, "/")
	k := make(Key, 0, len(segs))
	for _, seg := range segs {
		if seg == "" {
			return nil, fmt.Errorf("key %q: empty segment", s)
		}
		if n, err := strconv.ParseInt(seg, 10, 64); err == nil {
			k = append(k, IRInt(n))
			continue
		}
		if b, err := strconv.ParseBool(seg); err == nil && (seg == "true" || seg == "false") {
			k = append(k, IRBool(b))
			continue
		}
		k = append(k, IRString(seg))
	}
	return k, nil
}

// Equal reports structural equality.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p is a prefix of k. The empty pattern matches
// every key; a pattern longer than k never matches.
func (k Key) HasPrefix(p Key) bool {
	if len(p) > len(k) {
		return false
	}
	for i := range p {
		if k[i] != p[i] {
			return false
		}
	}
	return true
}

// Matches reports whether the pattern p selects k (exact or prefix).
func (k Key) Matches(p Key) bool {
	return k.HasPrefix(p)
}

// Canonical returns the RFC 8785 canonical JSON array for the key.
// Keys built through NewKey/K/ParseKey always encode; the error path only
// triggers for hand-built keys holding composite values.
func (k Key) Canonical() (string, error) {
	for i, v := range k {
		switch v.(type) {
		case IRString, IRInt, IRBool:
		default:
			return "", fmt.Errorf("key element %d: %T is not a primitive", i, v)
		}
	}
	b, err := MarshalCanonical(IRArray(k))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// String renders the key in slash form for logs and CLI output.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		switch val := v.(type) {
		case IRString:
			parts[i] = string(val)
		case IRInt:
			parts[i] = strconv.FormatInt(int64(val), 10)
		case IRBool:
			parts[i] = strconv.FormatBool(bool(val))
		default:
			parts[i] = fmt.Sprintf("%v", val)
		}
	}
	return strings.Join(parts, "/")
}

// Clone returns a copy that shares no backing array with k.
func (k Key) Clone() Key {
	if k == nil {
		return nil
	}
	out := make(Key, len(k))
	copy(out, k)
	return out
}

// MarshalJSON encodes the key as a JSON array.
func (k Key) MarshalJSON() ([]byte, error) {
	return MarshalIRValue(IRArray(k))
}

// UnmarshalJSON decodes a JSON array of primitives.
func (k *Key) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return err
	}
	arr, ok := v.(IRArray)
	if !ok {
		return fmt.Errorf("key must be a JSON array, got %T", v)
	}
	out := make(Key, len(arr))
	for i, elem := range arr {
		switch elem.(type) {
		case IRString, IRInt, IRBool:
			out[i] = elem
		default:
			return fmt.Errorf("key element %d: %T is not a primitive", i, elem)
		}
	}
	*k = out
	return nil
}

// MustCanonical is like Canonical but panics on error.
func (k Key) MustCanonical() string {
	s, err := k.Canonical()
	if err != nil {
		panic(err)
	}
	return s
}

var _ json.Marshaler = Key(nil)
