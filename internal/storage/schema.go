package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Logical column types understood by every backend's DDL builder.
const (
	TypeText      = "text"
	TypeBigInt    = "bigint"
	TypeBool      = "bool"
	TypeTimestamp = "timestamp"
	TypeUUID      = "uuid"
)

// ColumnDef describes one column of a table the application owns.
type ColumnDef struct {
	Name       string
	Type       string // one of the Type* constants
	Nullable   bool
	PrimaryKey bool
}

// TableDef is a backend-neutral table definition.
type TableDef struct {
	Name    string
	Columns []ColumnDef
}

// ColumnNames returns the column names in declaration order.
func (t TableDef) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Validate reports structural problems every builder would reject.
func (t TableDef) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s: at least one column is required", t.Name)
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return fmt.Errorf("table %s: column with empty name", t.Name)
		}
		if _, dup := seen[strings.ToLower(name)]; dup {
			return fmt.Errorf("table %s: duplicate column %s", t.Name, name)
		}
		seen[strings.ToLower(name)] = struct{}{}
	}
	return nil
}

// DDLBuilder renders an idempotent CREATE statement for a backend.
type DDLBuilder func(TableDef) (string, error)

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBuilder{}
)

// RegisterDDL registers (or replaces) the DDL builder for kind.
func RegisterDDL(kind string, fn DDLBuilder) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// BuildDDL renders def with the builder registered for kind.
func BuildDDL(kind string, def TableDef) (string, error) {
	ddlMu.RLock()
	fn, ok := ddlFns[kind]
	ddlMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no DDL builder registered for storage.kind=%q", kind)
	}
	if err := def.Validate(); err != nil {
		return "", err
	}
	return fn(def)
}

// EnsureTables creates every table in defs that does not exist yet.
func EnsureTables(ctx context.Context, kind string, repo Repository, defs ...TableDef) error {
	for _, def := range defs {
		stmt, err := BuildDDL(kind, def)
		if err != nil {
			return err
		}
		if err := repo.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", def.Name, err)
		}
	}
	return nil
}
