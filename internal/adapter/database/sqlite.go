package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/semmidev/sitekeep/internal/config"
)

type SQLite struct{}

func (SQLite) Name() string {
	return "sqlite"
}

func (SQLite) DriverName() string {
	return "sqlite3"
}

func (SQLite) DSN(cfg *config.DatabaseConfig) string {
	return "file:" + cfg.Path + "?mode=ro&_busy_timeout=5000"
}

func (SQLite) Tool(cfg *config.DatabaseConfig, rawPath string) ToolCommand {
	name := "sqlite3"
	if cfg.DumpTool != "" {
		name = cfg.DumpTool
	}
	return ToolCommand{
		Name:   name,
		Args:   []string{"-readonly", cfg.Path, ".dump"},
		Stdout: true,
	}
}

func (SQLite) Tables(ctx context.Context, db *sql.DB) ([]string, error) {
	return queryStrings(ctx, db,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
}

func (SQLite) CreateStatement(ctx context.Context, db *sql.DB, table string) (string, error) {
	var stmt string
	err := db.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&stmt)
	return stmt, err
}

func (s SQLite) DropStatement(table string) string {
	return "DROP TABLE IF EXISTS " + s.QuoteIdent(table) + ";"
}

func (SQLite) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (SQLite) QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (SQLite) AfterData(ctx context.Context, db *sql.DB, table string) (string, error) {
	return "", nil
}

func (SQLite) Bytes(b []byte, dbType string) string {
	return "X'" + hexBytes(b) + "'"
}

func (s SQLite) Time(t time.Time, dbType string) string {
	return s.QuoteString(t.Format(dateTimeLayout))
}

func (SQLite) Bool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (SQLite) Header() string {
	return "PRAGMA foreign_keys=OFF;\nBEGIN TRANSACTION;\n\n"
}

func (SQLite) Footer() string {
	return "COMMIT;\n"
}
