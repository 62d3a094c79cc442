package vdf

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the shape of a Node.
type Kind int

const (
	// KindString is a leaf holding a scalar value.
	KindString Kind = iota
	// KindMap is an ordered collection of keyed children.
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrNotFound is wrapped by KeyError so callers can test for absence with errors.Is.
var ErrNotFound = errors.New("key not found")

// KeyError reports a missing key along an accessor path.
type KeyError struct {
	Path []string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("vdf: %s: %v", joinPath(e.Path), ErrNotFound)
}

func (e *KeyError) Unwrap() error { return ErrNotFound }

// ShapeError reports a node whose kind differs from what the accessor expected.
type ShapeError struct {
	Path []string
	Want Kind
	Got  Kind
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("vdf: %s: expected %s, found %s", joinPath(e.Path), e.Want, e.Got)
}

func joinPath(path []string) string {
	if len(path) == 0 {
		return "(root)"
	}
	return strings.Join(path, ".")
}

// Entry is a single key/child pair inside a map node. Cond holds a trailing
// platform conditional such as [$WIN32], or is empty.
type Entry struct {
	Key  string
	Node *Node
	Cond string
}

// Node is a KeyValues tree element: either a string leaf or an ordered map.
// Map entries keep document order so a load/dump cycle preserves untouched keys.
type Node struct {
	kind    Kind
	value   string
	entries []Entry
}

// NewString returns a string leaf.
func NewString(value string) *Node {
	return &Node{kind: KindString, value: value}
}

// NewMap returns an empty map node.
func NewMap() *Node {
	return &Node{kind: KindMap}
}

// Kind reports the node shape.
func (n *Node) Kind() Kind {
	return n.kind
}

// Value returns the scalar held by a string node.
func (n *Node) Value() (string, error) {
	if n.kind != KindString {
		return "", &ShapeError{Want: KindString, Got: n.kind}
	}
	return n.value, nil
}

// Entries returns the children of a map node in document order.
func (n *Node) Entries() []Entry {
	return n.entries
}

// Keys lists child keys in document order.
func (n *Node) Keys() []string {
	keys := make([]string, 0, len(n.entries))
	for _, e := range n.entries {
		keys = append(keys, e.Key)
	}
	return keys
}

// Len returns the number of children of a map node.
func (n *Node) Len() int {
	return len(n.entries)
}

// Get returns the child stored under key. An exact match wins; otherwise the
// first case-insensitive match is returned, since Steam does not keep key case
// consistent across files.
func (n *Node) Get(key string) (*Node, bool) {
	if i := n.index(key); i >= 0 {
		return n.entries[i].Node, true
	}
	return nil, false
}

func (n *Node) index(key string) int {
	for i, e := range n.entries {
		if e.Key == key {
			return i
		}
	}
	for i, e := range n.entries {
		if strings.EqualFold(e.Key, key) {
			return i
		}
	}
	return -1
}

// Has reports whether key is present.
func (n *Node) Has(key string) bool {
	return n.index(key) >= 0
}

// Path walks a chain of map keys and returns the node at the end.
func (n *Node) Path(keys ...string) (*Node, error) {
	cur := n
	for i, key := range keys {
		if cur.kind != KindMap {
			return nil, &ShapeError{Path: keys[:i], Want: KindMap, Got: cur.kind}
		}
		next, ok := cur.Get(key)
		if !ok {
			return nil, &KeyError{Path: keys[:i+1]}
		}
		cur = next
	}
	return cur, nil
}

// MapAt walks keys and requires the final node to be a map.
func (n *Node) MapAt(keys ...string) (*Node, error) {
	node, err := n.Path(keys...)
	if err != nil {
		return nil, err
	}
	if node.kind != KindMap {
		return nil, &ShapeError{Path: keys, Want: KindMap, Got: node.kind}
	}
	return node, nil
}

// StringAt walks keys and requires the final node to be a string leaf.
func (n *Node) StringAt(keys ...string) (string, error) {
	node, err := n.Path(keys...)
	if err != nil {
		return "", err
	}
	if node.kind != KindString {
		return "", &ShapeError{Path: keys, Want: KindString, Got: node.kind}
	}
	return node.value, nil
}

// Set stores child under key, replacing an existing entry in place or
// appending a new one. It fails when n is not a map.
func (n *Node) Set(key string, child *Node) error {
	if n.kind != KindMap {
		return &ShapeError{Want: KindMap, Got: n.kind}
	}
	if i := n.index(key); i >= 0 {
		n.entries[i].Node = child
		return nil
	}
	n.entries = append(n.entries, Entry{Key: key, Node: child})
	return nil
}

// SetString stores a string leaf under key.
func (n *Node) SetString(key, value string) error {
	return n.Set(key, NewString(value))
}

// Delete removes key and reports whether it existed.
func (n *Node) Delete(key string) bool {
	i := n.index(key)
	if i < 0 {
		return false
	}
	n.entries = append(n.entries[:i], n.entries[i+1:]...)
	return true
}

// add appends without de-duplication; the parser uses it so repeated keys survive a round trip.
func (n *Node) add(key string, child *Node, cond string) {
	n.entries = append(n.entries, Entry{Key: key, Node: child, Cond: cond})
}
