// Package xnamespace implements deterministic key-space partitioning so
// that independent providers sharing one backend never collide: a
// [Namespace] carries a dotted or slashed root path, and a [KeyPrefixer]
// combines namespace + user key into the prefixed key used inside the
// backend and the resolved key used in events and serialized handles.
package xnamespace

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyRoot is returned when a Namespace is constructed with an
	// empty root path.
	ErrEmptyRoot = errors.New("xnamespace: root must not be empty")

	// ErrReservedToken is returned when a user key contains the
	// namespace's reserved delimiter.
	ErrReservedToken = errors.New("xnamespace: key contains reserved delimiter")
)

// Namespace is a root path shared by every key a provider manages.
// The delimiter is whatever separates path segments ("." or "/"); it is
// reserved and may not appear inside a user-supplied key, keeping resolved
// keys unambiguous.
type Namespace struct {
	root      string
	delimiter string
}

// New constructs a Namespace from a root path and delimiter.
// delimiter defaults to "." when empty.
func New(root, delimiter string) (Namespace, error) {
	if strings.TrimSpace(root) == "" {
		return Namespace{}, ErrEmptyRoot
	}
	if delimiter == "" {
		delimiter = "."
	}
	root = strings.Trim(root, delimiter)
	return Namespace{root: root, delimiter: delimiter}, nil
}

// MustNew is like New but panics on error; intended for package-level
// variable initialization with a constant root.
func MustNew(root, delimiter string) Namespace {
	ns, err := New(root, delimiter)
	if err != nil {
		panic(err)
	}
	return ns
}

// Root returns the namespace's root path.
func (ns Namespace) Root() string { return ns.root }

// Delimiter returns the namespace's reserved delimiter.
func (ns Namespace) Delimiter() string { return ns.delimiter }

// Child returns a new Namespace nested under ns, e.g. ns.Child("cache")
// turns root "app" into "app.cache".
func (ns Namespace) Child(segment string) Namespace {
	return Namespace{root: ns.root + ns.delimiter + segment, delimiter: ns.delimiter}
}

// validateKey rejects keys carrying the namespace's reserved delimiter, so
// that PrefixedKey/ResolvedKey remain unambiguously splittable.
func (ns Namespace) validateKey(key string) error {
	if strings.Contains(key, ns.delimiter) {
		return fmt.Errorf("%w: %q contains %q", ErrReservedToken, key, ns.delimiter)
	}
	return nil
}

// KeyPrefixer combines a Namespace with a user key to produce backend-facing
// and event/serialization-facing key forms.
type KeyPrefixer struct {
	ns Namespace
}

// NewKeyPrefixer builds a KeyPrefixer bound to ns.
func NewKeyPrefixer(ns Namespace) KeyPrefixer {
	return KeyPrefixer{ns: ns}
}

// PrefixedKey returns the key used inside the storage backend:
// "<root><delimiter><userKey>".
func (p KeyPrefixer) PrefixedKey(userKey string) (string, error) {
	if err := p.ns.validateKey(userKey); err != nil {
		return "", err
	}
	return p.ns.root + p.ns.delimiter + userKey, nil
}

// ResolvedKey returns the key used in events and serialized handles. It is
// distinct from the prefixed key only in intent — both are namespace-qualified
// — but is computed independently so namespace/backend changes never leak
// into the resolved form observed by callers.
func (p KeyPrefixer) ResolvedKey(userKey string) (string, error) {
	return p.PrefixedKey(userKey)
}

// Namespace returns the underlying Namespace.
func (p KeyPrefixer) Namespace() Namespace { return p.ns }

// Split reverses PrefixedKey, returning the original user key. It returns
// false if prefixedKey does not belong to this namespace.
func (p KeyPrefixer) Split(prefixedKey string) (string, bool) {
	prefix := p.ns.root + p.ns.delimiter
	if !strings.HasPrefix(prefixedKey, prefix) {
		return "", false
	}
	return strings.TrimPrefix(prefixedKey, prefix), true
}
