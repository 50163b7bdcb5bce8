package zcl

import (
	"sort"
	"sync"
)

type attrKey struct {
	endpoint uint8
	cluster  uint16
	id       uint16
}

// Table holds the local attribute values the network sees.
type Table struct {
	mu    sync.RWMutex
	attrs map[attrKey]Attribute
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{attrs: make(map[attrKey]Attribute)}
}

// Set stores a and reports whether the stored value changed.
func (t *Table) Set(a Attribute) bool {
	k := attrKey{a.Endpoint, a.Cluster, a.ID}
	t.mu.Lock()
	defer t.mu.Unlock()
	old, ok := t.attrs[k]
	t.attrs[k] = a
	return !ok || old.Type != a.Type || old.Value != a.Value
}

// Get returns the attribute stored for endpoint, cluster and id.
func (t *Table) Get(endpoint uint8, cluster, id uint16) (Attribute, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.attrs[attrKey{endpoint, cluster, id}]
	return a, ok
}

// All returns every stored attribute ordered by endpoint, cluster and id.
func (t *Table) All() []Attribute {
	t.mu.RLock()
	out := make([]Attribute, 0, len(t.attrs))
	for _, a := range t.attrs {
		out = append(out, a)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Endpoint != out[j].Endpoint {
			return out[i].Endpoint < out[j].Endpoint
		}
		if out[i].Cluster != out[j].Cluster {
			return out[i].Cluster < out[j].Cluster
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of stored attributes.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.attrs)
}
