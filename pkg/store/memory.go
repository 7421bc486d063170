package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/r3aper2020/Gamut-MGMT/pkg/ids"
)

// MemoryStore is an in-process Store for tests and single-node development
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*Document
	now         func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]*Document),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Get returns a copy of a document
func (m *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := validateKey(collection, id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

// Set replaces a document
func (m *MemoryStore) Set(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	if err := validateFields(fields); err != nil {
		return err
	}
	normalized, err := normalize(fields)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	created := now
	if existing, ok := m.collections[collection][id]; ok {
		created = existing.CreatedAt
	}
	m.put(collection, &Document{ID: id, Fields: normalized, CreatedAt: created, UpdatedAt: now})
	return nil
}

// Create writes a new document
func (m *MemoryStore) Create(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	if err := validateFields(fields); err != nil {
		return err
	}
	normalized, err := normalize(fields)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection][id]; ok {
		return ErrAlreadyExists
	}
	now := m.now()
	m.put(collection, &Document{ID: id, Fields: normalized, CreatedAt: now, UpdatedAt: now})
	return nil
}

// Add writes a new document under a generated id
func (m *MemoryStore) Add(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	id := ids.NewLower()
	if err := m.Create(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// Update merges fields into a document
func (m *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	if err := validateFields(fields); err != nil {
		return err
	}
	sets, removals := splitPatch(fields)
	normalized, err := normalize(sets)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range normalized {
		doc.Fields[k] = v
	}
	for _, k := range removals {
		delete(doc.Fields, k)
	}
	doc.UpdatedAt = m.now()
	return nil
}

// Delete removes a document
func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.collections[collection], id)
	return nil
}

// Query returns copies of matching documents ordered by id
func (m *MemoryStore) Query(ctx context.Context, collection string, filters ...Filter) ([]*Document, error) {
	if err := validateName(collection); err != nil {
		return nil, err
	}
	if err := validateFilters(filters); err != nil {
		return nil, err
	}
	encoded, err := encodeFilters(filters)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]*Document, 0)
	for _, doc := range m.collections[collection] {
		if matches(doc, encoded, filters) {
			results = append(results, doc.Clone())
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

// Increment adds delta to an integer field under the write lock
func (m *MemoryStore) Increment(ctx context.Context, collection, id, field string, delta int64) (int64, error) {
	if err := validateKey(collection, id); err != nil {
		return 0, err
	}
	if !namePattern.MatchString(field) {
		return 0, fmt.Errorf("%w: field %q", ErrInvalidField, field)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return 0, ErrNotFound
	}
	var current int64
	if v, exists := doc.Fields[field]; exists && v != nil {
		n, ok := toInt64(v)
		if !ok {
			return 0, ErrNotANumber
		}
		current = n
	}
	current += delta
	doc.Fields[field] = float64(current)
	doc.UpdatedAt = m.now()
	return current, nil
}

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) put(collection string, doc *Document) {
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]*Document)
		m.collections[collection] = coll
	}
	coll[doc.ID] = doc
}
