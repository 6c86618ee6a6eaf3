// Package keychain looks up stored internet passwords.
package keychain

import (
	"context"
	"errors"
	"sync"
)

// Class identifies the kind of stored item.
type Class string

const ClassInternetPassword Class = "inet"

// Protocol is the four character protocol code attached to internet
// passwords.
type Protocol string

const (
	ProtocolHTTPProxy  Protocol = "htpx"
	ProtocolHTTPSProxy Protocol = "htsx"
)

var (
	// ErrNotFound is returned by Find when no item matches.
	ErrNotFound = errors.New("no matching keychain item")
	// ErrAttribute is returned by Item accessors that cannot read an attribute.
	ErrAttribute = errors.New("keychain item attribute unavailable")
)

// Query selects internet password items. All fields must match exactly.
type Query struct {
	Class    Class
	Protocol Protocol
	Server   string
	Port     uint32
}

// Item is one stored credential. Attribute retrieval may fail per item.
type Item interface {
	Account() (string, error)
	Secret() ([]byte, error)
}

// Store returns all items matching a query, in store order. Stores may
// return ErrNotFound or an empty slice when nothing matches.
type Store interface {
	Find(ctx context.Context, q Query) ([]Item, error)
}

// Entry is a stored credential with its attributes.
type Entry struct {
	Class    Class
	Protocol Protocol
	Server   string
	Port     uint32
	Account  string
	Password string
}

func (e Entry) matches(q Query) bool {
	class := e.Class
	if class == "" {
		class = ClassInternetPassword
	}
	return (q.Class == "" || q.Class == class) &&
		e.Protocol == q.Protocol &&
		e.Server == q.Server &&
		e.Port == q.Port
}

type entryItem struct {
	Entry
}

// Account is always readable; an empty account is a valid value.
func (i entryItem) Account() (string, error) {
	return i.Entry.Account, nil
}

func (i entryItem) Secret() ([]byte, error) {
	return []byte(i.Entry.Password), nil
}

// MemoryStore keeps entries in insertion order.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore returns a store holding entries.
func NewMemoryStore(entries ...Entry) *MemoryStore {
	return &MemoryStore{entries: append([]Entry(nil), entries...)}
}

// Add appends an entry.
func (m *MemoryStore) Add(e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

func (m *MemoryStore) Find(ctx context.Context, q Query) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []Item
	for _, e := range m.entries {
		if e.matches(q) {
			items = append(items, entryItem{e})
		}
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items, nil
}

// Empty is a store that never has credentials.
type Empty struct{}

func (Empty) Find(context.Context, Query) ([]Item, error) { return nil, ErrNotFound }
