package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/semmidev/sitekeep/internal/config"
)

// ToolCommand describes one invocation of an external dump tool. When Stdout
// is set the tool writes the dump to standard output and the caller redirects
// it into the raw file; otherwise the tool writes the file itself.
type ToolCommand struct {
	Name   string
	Args   []string
	Env    []string
	Stdout bool
}

// Dialect holds what differs between database engines in a dump.
type Dialect interface {
	Name() string
	DriverName() string
	DSN(cfg *config.DatabaseConfig) string
	Tool(cfg *config.DatabaseConfig, rawPath string) ToolCommand

	// Tables lists base tables only. Views have no rows of their own.
	Tables(ctx context.Context, db *sql.DB) ([]string, error)
	CreateStatement(ctx context.Context, db *sql.DB, table string) (string, error)
	DropStatement(table string) string
	// AfterData returns statements that must follow a table's rows, such as
	// sequence positions. Empty when the engine needs none.
	AfterData(ctx context.Context, db *sql.DB, table string) (string, error)

	QuoteIdent(name string) string
	QuoteString(s string) string
	// Bytes and Time receive the driver's column type name, which may be
	// empty when the driver does not report one.
	Bytes(b []byte, dbType string) string
	Time(t time.Time, dbType string) string
	Bool(b bool) string

	Header() string
	Footer() string
}

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "mysql":
		return MySQL{}, nil
	case "postgres":
		return PostgreSQL{}, nil
	case "sqlite":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// Open connects to the configured database with the dialect's driver.
func Open(cfg *config.DatabaseConfig) (*sql.DB, Dialect, error) {
	d, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, nil, err
	}
	db, err := sql.Open(d.DriverName(), d.DSN(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", d.Name(), err)
	}
	db.SetMaxOpenConns(2)
	return db, d, nil
}

// Literal renders one scanned column value as SQL. NULL is always the keyword.
func Literal(d Dialect, v any, dbType string) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return d.Bool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case time.Time:
		return d.Time(x, dbType)
	case []byte:
		return d.Bytes(x, dbType)
	case string:
		return d.QuoteString(x)
	default:
		return d.QuoteString(fmt.Sprint(x))
	}
}

const dateTimeLayout = "2006-01-02 15:04:05.999999"

func hexBytes(b []byte) string {
	return hex.EncodeToString(b)
}
