package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"
)

// Collections used by the organization service
const (
	CollectionUsers         = "users"
	CollectionOrganizations = "organizations"
	CollectionTeams         = "teams"
	CollectionSystem        = "system"
)

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned by Create when the id is taken
	ErrAlreadyExists = errors.New("document already exists")
	// ErrInvalidField is returned for malformed collection, id or field names
	ErrInvalidField = errors.New("invalid field name")
	// ErrNotANumber is returned by Increment when the field holds a non-integer value
	ErrNotANumber = errors.New("field is not an integer")
)

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_\-.@|:]{1,128}$`)

// Document is a schemaless record in a collection
type Document struct {
	ID        string
	Fields    map[string]interface{}
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter matches documents whose field equals Value
type Filter struct {
	Field string
	Value interface{}
}

// Eq builds an equality filter
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Value: value}
}

// Store is a document database with atomic counters.
// All implementations are safe for concurrent use.
type Store interface {
	// Get returns a document or ErrNotFound
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Set writes a document, replacing any existing fields
	Set(ctx context.Context, collection, id string, fields map[string]interface{}) error
	// Create writes a new document, failing with ErrAlreadyExists if id is taken
	Create(ctx context.Context, collection, id string, fields map[string]interface{}) error
	// Add writes a new document under a store-assigned id
	Add(ctx context.Context, collection string, fields map[string]interface{}) (string, error)
	// Update merges fields into an existing document. A nil value removes the field.
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Query returns documents matching every filter, ordered by id
	Query(ctx context.Context, collection string, filters ...Filter) ([]*Document, error)
	// Increment atomically adds delta to an integer field and returns the new value
	Increment(ctx context.Context, collection, id, field string, delta int64) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// String returns a string field, or "" if missing or not a string
func (d *Document) String(field string) string {
	if d == nil {
		return ""
	}
	s, _ := d.Fields[field].(string)
	return s
}

// Int returns an integer field, or 0 if missing or not numeric
func (d *Document) Int(field string) int64 {
	if d == nil {
		return 0
	}
	n, _ := toInt64(d.Fields[field])
	return n
}

// Bool returns a boolean field, or false if missing
func (d *Document) Bool(field string) bool {
	if d == nil {
		return false
	}
	b, _ := d.Fields[field].(bool)
	return b
}

// Decode unmarshals the document fields into v
func (d *Document) Decode(v interface{}) error {
	data, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", d.ID, err)
	}
	return nil
}

// Clone returns a deep copy of the document
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	fields, _ := normalize(d.Fields)
	return &Document{ID: d.ID, Fields: fields, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

// Fields converts a struct into a field map using its json tags
func Fields(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}
	return out, nil
}

func validateName(collection string) error {
	if !namePattern.MatchString(collection) {
		return fmt.Errorf("%w: collection %q", ErrInvalidField, collection)
	}
	return nil
}

func validateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: id %q", ErrInvalidField, id)
	}
	return nil
}

func validateKey(collection, id string) error {
	if err := validateName(collection); err != nil {
		return err
	}
	return validateID(id)
}

func validateFields(fields map[string]interface{}) error {
	for name := range fields {
		if !namePattern.MatchString(name) {
			return fmt.Errorf("%w: field %q", ErrInvalidField, name)
		}
	}
	return nil
}

func validateFilters(filters []Filter) error {
	for _, f := range filters {
		if !namePattern.MatchString(f.Field) {
			return fmt.Errorf("%w: filter field %q", ErrInvalidField, f.Field)
		}
		if f.Value == nil {
			return fmt.Errorf("%w: filter on %q has nil value", ErrInvalidField, f.Field)
		}
	}
	return nil
}

// normalize round-trips fields through JSON so every backend holds the same shapes
func normalize(fields map[string]interface{}) (map[string]interface{}, error) {
	if fields == nil {
		return map[string]interface{}{}, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}
	out := make(map[string]interface{}, len(fields))
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}
	return out, nil
}

// encodeValue returns the canonical JSON encoding used for equality comparison
func encodeValue(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}
	data, err = json.Marshal(generic)
	if err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}
	return string(data), nil
}

// splitPatch separates an update into assignments and removals
func splitPatch(fields map[string]interface{}) (map[string]interface{}, []string) {
	sets := make(map[string]interface{}, len(fields))
	var removals []string
	for k, v := range fields {
		if v == nil {
			removals = append(removals, k)
			continue
		}
		sets[k] = v
	}
	sort.Strings(removals)
	return sets, removals
}

func matches(doc *Document, encoded []string, filters []Filter) bool {
	for i, f := range filters {
		v, ok := doc.Fields[f.Field]
		if !ok {
			return false
		}
		got, err := encodeValue(v)
		if err != nil || got != encoded[i] {
			return false
		}
	}
	return true
}

func encodeFilters(filters []Filter) ([]string, error) {
	out := make([]string, len(filters))
	for i, f := range filters {
		enc, err := encodeValue(f.Value)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
