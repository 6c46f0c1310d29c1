package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lib/pq"

	"github.com/semmidev/sitekeep/internal/config"
)

type PostgreSQL struct{}

func (PostgreSQL) Name() string {
	return "postgres"
}

func (PostgreSQL) DriverName() string {
	return "postgres"
}

func (PostgreSQL) DSN(cfg *config.DatabaseConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}

func (PostgreSQL) Tool(cfg *config.DatabaseConfig, rawPath string) ToolCommand {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	name := "pg_dump"
	if cfg.DumpTool != "" {
		name = cfg.DumpTool
	}
	return ToolCommand{
		Name: name,
		Args: []string{
			fmt.Sprintf("--host=%s", cfg.Host),
			fmt.Sprintf("--port=%d", port),
			fmt.Sprintf("--username=%s", cfg.Username),
			"--format=plain",
			"--clean",
			"--if-exists",
			"--no-owner",
			fmt.Sprintf("--file=%s", rawPath),
			cfg.Name,
		},
		Env: []string{fmt.Sprintf("PGPASSWORD=%s", cfg.Password)},
	}
}

func (PostgreSQL) Tables(ctx context.Context, db *sql.DB) ([]string, error) {
	return queryStrings(ctx, db,
		"SELECT table_name FROM information_schema.tables "+
			"WHERE table_schema = 'public' AND table_type = 'BASE TABLE' ORDER BY table_name")
}

// CreateStatement rebuilds the table from the catalog: sequences backing
// serial columns, column definitions, and primary key and unique
// constraints. Foreign keys, checks and indexes are left to the dump tool.
func (p PostgreSQL) CreateStatement(ctx context.Context, db *sql.DB, table string) (string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT a.attname, pg_catalog.format_type(a.atttypid, a.atttypmod), a.attnotnull, "+
			"pg_catalog.pg_get_expr(d.adbin, d.adrelid), pg_catalog.pg_get_serial_sequence($2, a.attname) "+
			"FROM pg_catalog.pg_attribute a "+
			"LEFT JOIN pg_catalog.pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum "+
			"WHERE a.attrelid = $1::regclass AND a.attnum > 0 AND NOT a.attisdropped "+
			"ORDER BY a.attnum", p.QuoteIdent(table), p.QuoteIdent(table))
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var (
		cols      []string
		sequences []string
	)
	for rows.Next() {
		var (
			name, typ string
			notNull   bool
			def, seq  sql.NullString
		)
		if err := rows.Scan(&name, &typ, &notNull, &def, &seq); err != nil {
			return "", err
		}
		col := "  " + p.QuoteIdent(name) + " " + typ
		if def.Valid {
			col += " DEFAULT " + def.String
		}
		if notNull {
			col += " NOT NULL"
		}
		cols = append(cols, col)
		if seq.Valid {
			sequences = append(sequences, "CREATE SEQUENCE IF NOT EXISTS "+seq.String+";\n")
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("no columns found for %s", table)
	}
	rows.Close()

	constraints, err := p.constraints(ctx, db, table)
	if err != nil {
		return "", err
	}
	cols = append(cols, constraints...)

	return strings.Join(sequences, "") +
		"CREATE TABLE " + p.QuoteIdent(table) + " (\n" + strings.Join(cols, ",\n") + "\n)", nil
}

func (p PostgreSQL) constraints(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT conname, pg_catalog.pg_get_constraintdef(oid) FROM pg_catalog.pg_constraint "+
			"WHERE conrelid = $1::regclass AND contype IN ('p', 'u') "+
			"ORDER BY contype, conname", p.QuoteIdent(table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name, def string
		if err := rows.Scan(&name, &def); err != nil {
			return nil, err
		}
		out = append(out, "  CONSTRAINT "+p.QuoteIdent(name)+" "+def)
	}
	return out, rows.Err()
}

// AfterData ties each serial sequence to its column and moves it past the
// restored rows.
func (p PostgreSQL) AfterData(ctx context.Context, db *sql.DB, table string) (string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT a.attname, pg_catalog.pg_get_serial_sequence($2, a.attname) "+
			"FROM pg_catalog.pg_attribute a "+
			"WHERE a.attrelid = $1::regclass AND a.attnum > 0 AND NOT a.attisdropped "+
			"AND pg_catalog.pg_get_serial_sequence($2, a.attname) IS NOT NULL "+
			"ORDER BY a.attnum", p.QuoteIdent(table), p.QuoteIdent(table))
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var col, seq string
		if err := rows.Scan(&col, &seq); err != nil {
			return "", err
		}
		qt, qc := p.QuoteIdent(table), p.QuoteIdent(col)
		fmt.Fprintf(&b, "ALTER SEQUENCE %s OWNED BY %s.%s;\n", seq, qt, qc)
		fmt.Fprintf(&b, "SELECT pg_catalog.setval(%s, COALESCE(MAX(%s), 1), MAX(%s) IS NOT NULL) FROM %s;\n",
			p.QuoteString(seq), qc, qc, qt)
	}
	return b.String(), rows.Err()
}

func (p PostgreSQL) DropStatement(table string) string {
	return "DROP TABLE IF EXISTS " + p.QuoteIdent(table) + " CASCADE;"
}

func (PostgreSQL) QuoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

func (PostgreSQL) QuoteString(s string) string {
	return pq.QuoteLiteral(s)
}

// Bytes writes bytea in hex input format. lib/pq also returns numeric, uuid,
// json and array values as []byte, and those are plain text literals.
func (p PostgreSQL) Bytes(b []byte, dbType string) string {
	if dbType == "BYTEA" || (dbType == "" && !utf8.Valid(b)) {
		return "'\\x" + hexBytes(b) + "'::bytea"
	}
	return p.QuoteString(string(b))
}

// Time keeps the offset for zoned types so timestamptz values restore to the
// same instant.
func (p PostgreSQL) Time(t time.Time, dbType string) string {
	switch dbType {
	case "DATE":
		return p.QuoteString(t.Format(time.DateOnly))
	case "TIME":
		return p.QuoteString(t.Format("15:04:05.999999"))
	case "TIMETZ":
		return p.QuoteString(t.Format("15:04:05.999999-07:00"))
	case "TIMESTAMP":
		return p.QuoteString(t.Format(dateTimeLayout))
	default:
		return p.QuoteString(t.Format(dateTimeLayout + "-07:00"))
	}
}

func (PostgreSQL) Bool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (PostgreSQL) Header() string {
	return "SET client_encoding = 'UTF8';\nSET standard_conforming_strings = on;\n\n"
}

func (PostgreSQL) Footer() string {
	return ""
}
