// Package schema implements C1, the schema snapshot that grounds the chat
// SQL assistant: a compact, cached manifest of the tables the
// execute_sql tool is allowed to see, keyed by a content hash so the chat
// prompt can cite which snapshot it reasoned against.
package schema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// allowedTables is the fixed allow-list of tables/views ever exposed to
// SQL-generation prompts. users, audit_events, admin_actions, and
// match_reviews are deliberately excluded.
var allowedTables = []string{
	"patients",
	"reports",
	"lab_results",
	"analytes",
	"analyte_aliases",
}

// Column describes one column of an allowed table.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table describes one allowed table and its columns.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Manifest is the schema snapshot handed to the chat LLM's system prompt.
type Manifest struct {
	ID     string  `json:"id"` // sha256 of the canonical manifest body
	Tables []Table `json:"tables"`
}

// Snapshotter builds and caches Manifest values from live
// information_schema introspection.
type Snapshotter struct {
	pool *pgxpool.Pool

	mu      sync.RWMutex
	current *Manifest
}

// New creates a Snapshotter. Callers should call Refresh once at boot so
// the first chat request doesn't pay introspection latency.
func New(pool *pgxpool.Pool) *Snapshotter {
	return &Snapshotter{pool: pool}
}

// Current returns the cached manifest, building one lazily if none exists
// yet.
func (s *Snapshotter) Current(ctx context.Context) (*Manifest, error) {
	s.mu.RLock()
	m := s.current
	s.mu.RUnlock()
	if m != nil {
		return m, nil
	}
	return s.Refresh(ctx)
}

// Bust forces the next Current call to rebuild the manifest. There are no
// schema-affecting admin actions in v1, and nothing in this repository
// calls it.
func (s *Snapshotter) Bust() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// Refresh re-introspects information_schema and replaces the cached
// manifest.
func (s *Snapshotter) Refresh(ctx context.Context) (*Manifest, error) {
	tables := make([]Table, 0, len(allowedTables))
	for _, name := range allowedTables {
		cols, err := s.columnsFor(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("introspect table %s: %w", name, err)
		}
		tables = append(tables, Table{Name: name, Columns: cols})
	}

	m := &Manifest{Tables: tables}
	m.ID = manifestHash(m)

	s.mu.Lock()
	s.current = m
	s.mu.Unlock()
	return m, nil
}

func (s *Snapshotter) columnsFor(ctx context.Context, table string) ([]Column, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// manifestHash produces a stable content hash independent of map/slice
// iteration order so identical schemas always produce the same snapshot id.
func manifestHash(m *Manifest) string {
	tables := make([]Table, len(m.Tables))
	copy(tables, m.Tables)
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	var b strings.Builder
	for _, t := range tables {
		b.WriteString(t.Name)
		b.WriteByte(':')
		for _, c := range t.Columns {
			b.WriteString(c.Name)
			b.WriteByte('=')
			b.WriteString(c.Type)
			b.WriteByte(',')
		}
		b.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// AllowedTables exposes the fixed allow-list for use by the SQL validator
// (pkg/toolloop), so it can reject any query touching a table the snapshot
// never describes.
func AllowedTables() []string {
	out := make([]string, len(allowedTables))
	copy(out, allowedTables)
	return out
}
