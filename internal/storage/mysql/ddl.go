package mysql

import (
	"fmt"
	"strings"

	"csvsplit/internal/storage"
)

// mapType maps a logical column onto a MySQL type. TEXT cannot be part of a
// primary key without a prefix length, so text keys become VARCHAR(255).
func mapType(c storage.ColumnDef) string {
	switch c.Type {
	case storage.TypeBigInt:
		return "BIGINT"
	case storage.TypeBool:
		return "TINYINT(1)"
	case storage.TypeTimestamp:
		return "DATETIME(6)"
	case storage.TypeUUID:
		return "CHAR(36)"
	default:
		if c.PrimaryKey {
			return "VARCHAR(255)"
		}
		return "TEXT"
	}
}

// BuildCreateTableSQL renders:
//
//	CREATE TABLE IF NOT EXISTS `table` (
//	  `col1` TYPE NULL|NOT NULL,
//	  PRIMARY KEY (`pk1`)
//	);
func BuildCreateTableSQL(t storage.TableDef) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("mysql ddl: %w", err)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	var pks []string
	for _, c := range t.Columns {
		null := " NOT NULL"
		if c.Nullable && !c.PrimaryKey {
			null = " NULL"
		}
		cols = append(cols, quoteIdent(c.Name)+" "+mapType(c)+null)
		if c.PrimaryKey {
			pks = append(pks, quoteIdent(c.Name))
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n  %s\n);",
		quoteFQN(t.Name),
		strings.Join(cols, ",\n  "),
	), nil
}

func quoteIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

// quoteFQN quotes "db.table" segment by segment, dropping empty segments.
func quoteFQN(fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, quoteIdent(p))
		}
	}
	return strings.Join(out, ".")
}

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = quoteIdent(c)
	}
	return out
}
