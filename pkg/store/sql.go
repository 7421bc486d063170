package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/r3aper2020/Gamut-MGMT/pkg/ids"
)

// Dialect selects the SQL flavour used by SQLStore
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (collection, id)
)`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	data TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (collection, id)
)`

// SQLStore keeps every collection in a single documents table with a JSON column
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// SQLConfig holds database connection configuration
type SQLConfig struct {
	Dialect     Dialect
	URL         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// OpenSQL connects to the database, configures the pool and ensures the schema exists
func OpenSQL(ctx context.Context, cfg SQLConfig) (*SQLStore, error) {
	db, err := sql.Open(string(cfg.Dialect), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", cfg.Dialect, err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	}
	if cfg.MaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.MaxLifetime)
	}
	if cfg.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.MaxIdleTime)
	}
	if cfg.Dialect == DialectSQLite {
		// A single connection keeps :memory: databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", cfg.Dialect, err)
	}

	s := NewSQLStore(db, cfg.Dialect)
	if err := s.EnsureSchema(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an open database handle
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// EnsureSchema creates the documents table if it does not exist
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	schema := postgresSchema
	if s.dialect == DialectSQLite {
		schema = sqliteSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

// DB returns the underlying database handle
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// rebind converts ? placeholders to $n for postgres
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) jsonParam() string {
	if s.dialect == DialectPostgres {
		return "?::jsonb"
	}
	return "json(?)"
}

// Get retrieves a document by id
func (s *SQLStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	if err := validateKey(collection, id); err != nil {
		return nil, err
	}

	query := s.rebind(`SELECT data, created_at, updated_at FROM documents WHERE collection = ? AND id = ?`)

	var raw []byte
	doc := &Document{ID: id}
	err := s.db.QueryRowContext(ctx, query, collection, id).Scan(&raw, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if err := json.Unmarshal(raw, &doc.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

// Set upserts a document, keeping its original creation time
func (s *SQLStore) Set(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	data, err := s.encode(collection, id, fields)
	if err != nil {
		return err
	}

	now := s.now()
	query := s.rebind(fmt.Sprintf(`
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, %s, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, s.jsonParam()))

	if _, err := s.db.ExecContext(ctx, query, collection, id, string(data), now, now); err != nil {
		return fmt.Errorf("failed to set document: %w", err)
	}
	return nil
}

// Create inserts a document, failing if the id exists
func (s *SQLStore) Create(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	data, err := s.encode(collection, id, fields)
	if err != nil {
		return err
	}

	now := s.now()
	query := s.rebind(fmt.Sprintf(`
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, %s, ?, ?)
		ON CONFLICT (collection, id) DO NOTHING
	`, s.jsonParam()))

	result, err := s.db.ExecContext(ctx, query, collection, id, string(data), now, now)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	if rows == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Add inserts a document under a generated id
func (s *SQLStore) Add(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	id := ids.NewLower()
	if err := s.Create(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// Update merges fields into a document in a single statement
func (s *SQLStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	if err := validateFields(fields); err != nil {
		return err
	}
	sets, removals := splitPatch(fields)

	var (
		expr string
		args []interface{}
	)
	if s.dialect == DialectPostgres {
		patch, err := json.Marshal(sets)
		if err != nil {
			return fmt.Errorf("failed to encode fields: %w", err)
		}
		if removals == nil {
			removals = []string{}
		}
		expr = "(data || ?::jsonb) - ?::text[]"
		args = append(args, string(patch), pq.Array(removals))
	} else {
		expr, args = sqliteUpdateExpr(sets, removals)
		if expr == "" {
			expr = "data"
		}
	}

	query := s.rebind(fmt.Sprintf(`UPDATE documents SET data = %s, updated_at = ? WHERE collection = ? AND id = ?`, expr))
	args = append(args, s.now(), collection, id)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// sqliteUpdateExpr builds json_set/json_remove calls for a shallow merge
func sqliteUpdateExpr(sets map[string]interface{}, removals []string) (string, []interface{}) {
	expr := "data"
	var args []interface{}

	if len(sets) > 0 {
		keys := make([]string, 0, len(sets))
		for k := range sets {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			encoded, err := json.Marshal(sets[k])
			if err != nil {
				encoded = []byte("null")
			}
			parts = append(parts, "?, json(?)")
			args = append(args, "$."+k, string(encoded))
		}
		expr = fmt.Sprintf("json_set(%s, %s)", expr, strings.Join(parts, ", "))
	}

	if len(removals) > 0 {
		placeholders := make([]string, len(removals))
		for i, k := range removals {
			placeholders[i] = "?"
			args = append(args, "$."+k)
		}
		expr = fmt.Sprintf("json_remove(%s, %s)", expr, strings.Join(placeholders, ", "))
	}
	return expr, args
}

// Delete removes a document
func (s *SQLStore) Delete(ctx context.Context, collection, id string) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	query := s.rebind(`DELETE FROM documents WHERE collection = ? AND id = ?`)
	if _, err := s.db.ExecContext(ctx, query, collection, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Query returns documents matching every equality filter, ordered by id
func (s *SQLStore) Query(ctx context.Context, collection string, filters ...Filter) ([]*Document, error) {
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

	where := []string{"collection = ?"}
	args := []interface{}{collection}
	for i, f := range filters {
		if s.dialect == DialectPostgres {
			where = append(where, "data->?::text = ?::jsonb")
			args = append(args, f.Field, encoded[i])
		} else {
			where = append(where, "json_extract(data, ?) = json_extract(?, '$')")
			args = append(args, "$."+f.Field, encoded[i])
		}
	}

	query := s.rebind(fmt.Sprintf(`SELECT id, data, created_at, updated_at FROM documents WHERE %s ORDER BY id`, strings.Join(where, " AND ")))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	results := make([]*Document, 0)
	for rows.Next() {
		var raw []byte
		doc := &Document{}
		if err := rows.Scan(&doc.ID, &raw, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if err := json.Unmarshal(raw, &doc.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", doc.ID, err)
		}
		results = append(results, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return results, nil
}

// Increment adds delta to an integer field with a single UPDATE ... RETURNING
func (s *SQLStore) Increment(ctx context.Context, collection, id, field string, delta int64) (int64, error) {
	if err := validateKey(collection, id); err != nil {
		return 0, err
	}
	if !namePattern.MatchString(field) {
		return 0, fmt.Errorf("%w: field %q", ErrInvalidField, field)
	}

	var (
		query string
		args  []interface{}
	)
	if s.dialect == DialectPostgres {
		query = `
			UPDATE documents
			SET data = jsonb_set(data, ARRAY[$3::text], to_jsonb(COALESCE((data->>$3::text)::bigint, 0) + $4)),
				updated_at = $5
			WHERE collection = $1 AND id = $2
			RETURNING (data->>$3::text)::bigint`
		args = []interface{}{collection, id, field, delta, s.now()}
	} else {
		path := "$." + field
		query = `
			UPDATE documents
			SET data = json_set(data, ?, COALESCE(json_extract(data, ?), 0) + ?),
				updated_at = ?
			WHERE collection = ? AND id = ?
			RETURNING json_extract(data, ?)`
		args = []interface{}{path, path, delta, s.now(), collection, id, path}
	}

	var value sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", field, err)
	}
	return value.Int64, nil
}

// Ping checks database connectivity
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) encode(collection, id string, fields map[string]interface{}) ([]byte, error) {
	if err := validateKey(collection, id); err != nil {
		return nil, err
	}
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fields: %w", err)
	}
	return data, nil
}
