package mssql

import (
	"fmt"
	"strings"

	"csvsplit/internal/storage"
)

// mapType maps a logical storage type onto a SQL Server column type.
// Key-ish text columns get a bounded length so they can be indexed.
func mapType(c storage.ColumnDef) string {
	switch c.Type {
	case storage.TypeBigInt:
		return "BIGINT"
	case storage.TypeBool:
		return "BIT"
	case storage.TypeTimestamp:
		return "DATETIME2"
	case storage.TypeUUID:
		return "UNIQUEIDENTIFIER"
	default:
		if c.PrimaryKey {
			return "NVARCHAR(450)"
		}
		return "NVARCHAR(MAX)"
	}
}

// BuildCreateTableSQL returns a T-SQL script that creates the table if it
// does not exist. T-SQL has no CREATE TABLE IF NOT EXISTS, so the statement is
// guarded by OBJECT_ID:
//
//	IF OBJECT_ID(N'[dbo].[t]', N'U') IS NULL
//	BEGIN
//	  CREATE TABLE [dbo].[t] (
//	    [col1] TYPE [NOT NULL],
//	    PRIMARY KEY ([pk1])
//	  );
//	END;
func BuildCreateTableSQL(t storage.TableDef) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("mssql ddl: %w", err)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	var pks []string
	for _, c := range t.Columns {
		def := msIdent(c.Name) + " " + mapType(c)
		if !c.Nullable || c.PrimaryKey {
			def += " NOT NULL"
		} else {
			def += " NULL"
		}
		cols = append(cols, def)
		if c.PrimaryKey {
			pks = append(pks, msIdent(c.Name))
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	fqn := msFQN(t.Name)
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  CREATE TABLE %s (\n    %s\n  );\nEND;",
		strings.ReplaceAll(fqn, "'", "''"),
		fqn,
		strings.Join(cols, ",\n    "),
	), nil
}

// msIdent quotes a single identifier segment with brackets, escaping any
// closing bracket.
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.runs" to
// "[dbo].[runs]". Empty segments are dropped.
func msFQN(name string) string {
	parts := strings.Split(name, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, msIdent(p))
	}
	return strings.Join(out, ".")
}
