package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-sql-driver/mysql"

	"github.com/semmidev/sitekeep/internal/config"
)

type MySQL struct{}

func (MySQL) Name() string {
	return "mysql"
}

func (MySQL) DriverName() string {
	return "mysql"
}

func (MySQL) DSN(cfg *config.DatabaseConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	c := mysql.NewConfig()
	c.User = cfg.Username
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	c.DBName = cfg.Name
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

func (MySQL) Tool(cfg *config.DatabaseConfig, rawPath string) ToolCommand {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	name := "mysqldump"
	if cfg.DumpTool != "" {
		name = cfg.DumpTool
	}
	return ToolCommand{
		Name: name,
		Args: []string{
			fmt.Sprintf("--host=%s", cfg.Host),
			fmt.Sprintf("--port=%d", port),
			fmt.Sprintf("--user=%s", cfg.Username),
			"--default-character-set=utf8mb4",
			"--single-transaction",
			"--quick",
			"--lock-tables=false",
			"--routines",
			"--triggers",
			fmt.Sprintf("--result-file=%s", rawPath),
			cfg.Name,
		},
		// MYSQL_PWD keeps the password out of the process list.
		Env: []string{fmt.Sprintf("MYSQL_PWD=%s", cfg.Password)},
	}
}

func (MySQL) Tables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SHOW FULL TABLES WHERE Table_type = 'BASE TABLE'")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// CreateStatement returns the second column of SHOW CREATE TABLE.
func (m MySQL) CreateStatement(ctx context.Context, db *sql.DB, table string) (string, error) {
	rows, err := db.QueryContext(ctx, "SHOW CREATE TABLE "+m.QuoteIdent(table))
	if err != nil {
		return "", err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("no create statement for %s", table)
	}
	vals, err := scanValues(rows)
	if err != nil {
		return "", err
	}
	if len(vals) < 2 {
		return "", fmt.Errorf("unexpected SHOW CREATE TABLE result for %s", table)
	}
	return asString(vals[1]), rows.Err()
}

func (m MySQL) DropStatement(table string) string {
	return "DROP TABLE IF EXISTS " + m.QuoteIdent(table) + ";"
}

func (MySQL) AfterData(ctx context.Context, db *sql.DB, table string) (string, error) {
	return "", nil
}

func (MySQL) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

var mysqlEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"'", "\\'",
	"\"", "\\\"",
	"\x00", "\\0",
	"\n", "\\n",
	"\r", "\\r",
	"\x1a", "\\Z",
)

func (MySQL) QuoteString(s string) string {
	return "'" + mysqlEscaper.Replace(s) + "'"
}

// Bytes keeps text columns readable. The mysql driver returns every text
// protocol value as []byte, so binary column types and invalid UTF-8 are
// written as hex.
func (m MySQL) Bytes(b []byte, dbType string) string {
	if len(b) == 0 {
		return "''"
	}
	if !mysqlBinaryTypes[dbType] && utf8.Valid(b) {
		return m.QuoteString(string(b))
	}
	return "0x" + hexBytes(b)
}

var mysqlBinaryTypes = map[string]bool{
	"BINARY":     true,
	"VARBINARY":  true,
	"TINYBLOB":   true,
	"BLOB":       true,
	"MEDIUMBLOB": true,
	"LONGBLOB":   true,
	"BIT":        true,
	"GEOMETRY":   true,
}

func (m MySQL) Time(t time.Time, dbType string) string {
	if dbType == "DATE" {
		return m.QuoteString(t.Format(time.DateOnly))
	}
	return m.QuoteString(t.Format(dateTimeLayout))
}

func (MySQL) Bool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (MySQL) Header() string {
	return "SET NAMES utf8mb4;\nSET FOREIGN_KEY_CHECKS=0;\n\n"
}

func (MySQL) Footer() string {
	return "SET FOREIGN_KEY_CHECKS=1;\n"
}
