package contacts

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-memory Directory seeded with a fixed contact
// list. It is the default when no database is configured.
type MemoryDirectory struct {
	mu   sync.RWMutex
	list []Contact
}

var _ Directory = (*MemoryDirectory)(nil)

// DefaultContacts returns the seed entries used when no contacts have been
// configured yet.
func DefaultContacts() []Contact {
	return []Contact{
		{ID: "1", Name: "Cris", Relationship: "Esposa", Phone: "5511999999999", WhatsApp: "5511999999999", Email: "cris@email.com"},
		{ID: "2", Name: "Filho", Relationship: "Filho", Phone: "5511988888888", WhatsApp: "5511988888888"},
	}
}

// NewMemoryDirectory creates a directory over the given contacts. A nil or
// empty slice falls back to DefaultContacts.
func NewMemoryDirectory(list []Contact) *MemoryDirectory {
	if len(list) == 0 {
		list = DefaultContacts()
	}
	return &MemoryDirectory{list: list}
}

// List implements Directory.
func (d *MemoryDirectory) List(_ context.Context) ([]Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Contact, len(d.list))
	copy(out, d.list)
	return out, nil
}
