package postgres

import (
	"fmt"
	"strings"

	"csvsplit/internal/storage"
)

// mapType maps a logical storage type onto a Postgres column type.
//
//	bigint    -> BIGINT
//	bool      -> BOOLEAN
//	timestamp -> TIMESTAMPTZ
//	uuid      -> UUID
//	text/*    -> TEXT
func mapType(kind string) string {
	switch kind {
	case storage.TypeBigInt:
		return "BIGINT"
	case storage.TypeBool:
		return "BOOLEAN"
	case storage.TypeTimestamp:
		return "TIMESTAMPTZ"
	case storage.TypeUUID:
		return "UUID"
	default:
		return "TEXT"
	}
}

// BuildCreateTableSQL builds a CREATE TABLE IF NOT EXISTS statement.
// Primary-key columns are always NOT NULL and the PRIMARY KEY clause keeps
// declaration order.
func BuildCreateTableSQL(t storage.TableDef) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("postgres ddl: %w", err)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	var pks []string
	for _, c := range t.Columns {
		var sb strings.Builder
		sb.WriteString(pgIdent(c.Name))
		sb.WriteByte(' ')
		sb.WriteString(mapType(c.Type))
		if !c.Nullable || c.PrimaryKey {
			sb.WriteString(" NOT NULL")
		}
		cols = append(cols, sb.String())
		if c.PrimaryKey {
			pks = append(pks, pgIdent(c.Name))
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		pgFQN(t.Name),
		strings.Join(cols, ",\n  "),
	), nil
}
