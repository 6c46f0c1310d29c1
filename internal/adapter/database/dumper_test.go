package database

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/sitekeep/internal/adapter/compressor"
	"github.com/semmidev/sitekeep/internal/config"
	"github.com/semmidev/sitekeep/internal/infrastructure/logger"
)

func readGzip(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	r, err := gzip.NewReader(f)
	if err != nil {
		return "", err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	return string(b), err
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-dump")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func expectWordPressTable(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SHOW FULL TABLES WHERE Table_type = 'BASE TABLE'").
		WillReturnRows(sqlmock.NewRows([]string{"Tables_in_wp", "Table_type"}).AddRow("wp_options", "BASE TABLE"))
	mock.ExpectQuery("SHOW CREATE TABLE `wp_options`").
		WillReturnRows(sqlmock.NewRows([]string{"Table", "Create Table"}).
			AddRow("wp_options", "CREATE TABLE `wp_options` (\n  `id` bigint NOT NULL\n)"))
	mock.ExpectQuery("SELECT * FROM `wp_options`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "value"}).
			AddRow(int64(1), "siteurl", []byte("http://x")).
			AddRow(int64(2), "it's", nil).
			AddRow(int64(3), "blank", []byte("")))
}

func TestDumperFallback(t *testing.T) {
	Convey("Given a Dumper without the external tool", t, func() {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		So(err, ShouldBeNil)
		defer db.Close()

		cfg := &config.DatabaseConfig{Driver: "mysql", Name: "wp", UseDumpTool: false}
		out := filepath.Join(t.TempDir(), "db.sql.gz")

		Convey("It should write schema and rows as compressed SQL", func() {
			expectWordPressTable(mock)
			d := NewDumper(cfg, db, MySQL{}, compressor.NewGzip(), logger.NewNop())

			So(d.Dump(context.Background(), out), ShouldBeNil)
			So(mock.ExpectationsWereMet(), ShouldBeNil)

			dump, err := readGzip(out)
			So(err, ShouldBeNil)
			So(dump, ShouldStartWith, "SET NAMES utf8mb4;")
			So(dump, ShouldContainSubstring, "DROP TABLE IF EXISTS `wp_options`;\nCREATE TABLE `wp_options`")
			So(dump, ShouldContainSubstring,
				"INSERT INTO `wp_options` VALUES\n(1,'siteurl','http://x'),\n(2,'it\\'s',NULL),\n(3,'blank','');\n")
			So(dump, ShouldEndWith, "SET FOREIGN_KEY_CHECKS=1;\n")
		})

		Convey("It should split inserts into chunks", func() {
			expectWordPressTable(mock)
			cfg.ChunkRows = 2
			d := NewDumper(cfg, db, MySQL{}, compressor.NewGzip(), logger.NewNop())

			So(d.Dump(context.Background(), out), ShouldBeNil)

			dump, err := readGzip(out)
			So(err, ShouldBeNil)
			So(dump, ShouldContainSubstring,
				"INSERT INTO `wp_options` VALUES\n(1,'siteurl','http://x'),\n(2,'it\\'s',NULL);\n"+
					"INSERT INTO `wp_options` VALUES\n(3,'blank','');\n")
		})

		Convey("A failing query aborts the dump and removes the output", func() {
			mock.ExpectQuery("SHOW FULL TABLES WHERE Table_type = 'BASE TABLE'").WillReturnError(errors.New("access denied"))
			d := NewDumper(cfg, db, MySQL{}, compressor.NewGzip(), logger.NewNop())

			err := d.Dump(context.Background(), out)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "mysql dump failed")
			So(err.Error(), ShouldContainSubstring, "access denied")

			_, statErr := os.Stat(out)
			So(os.IsNotExist(statErr), ShouldBeTrue)
		})

		Convey("Without a connection the fallback fails", func() {
			d := NewDumper(cfg, nil, MySQL{}, compressor.NewGzip(), logger.NewNop())
			So(d.Dump(context.Background(), out), ShouldNotBeNil)
		})
	})
}

func TestDumperTool(t *testing.T) {
	Convey("Given a Dumper with the external tool enabled", t, func() {
		db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
		So(err, ShouldBeNil)
		defer db.Close()

		cfg := &config.DatabaseConfig{Driver: "mysql", Host: "127.0.0.1", Name: "wp", UseDumpTool: true}
		out := filepath.Join(t.TempDir(), "db.sql.gz")
		d := NewDumper(cfg, db, MySQL{}, compressor.NewGzip(), logger.NewNop())

		Convey("A successful tool run is compressed and no query is issued", func() {
			script := writeScript(t, `for a in "$@"; do
  case "$a" in
    --result-file=*) echo '-- tool dump' > "${a#--result-file=}" ;;
  esac
done
`)
			d.lookPath = func(string) (string, error) { return script, nil }

			So(d.Dump(context.Background(), out), ShouldBeNil)
			So(mock.ExpectationsWereMet(), ShouldBeNil)

			dump, err := readGzip(out)
			So(err, ShouldBeNil)
			So(dump, ShouldEqual, "-- tool dump\n")

			_, statErr := os.Stat(out + ".raw")
			So(os.IsNotExist(statErr), ShouldBeTrue)
		})

		Convey("A non-zero exit falls back to the SQL path", func() {
			script := writeScript(t, "exit 2\n")
			d.lookPath = func(string) (string, error) { return script, nil }
			expectWordPressTable(mock)

			So(d.Dump(context.Background(), out), ShouldBeNil)
			So(mock.ExpectationsWereMet(), ShouldBeNil)

			dump, err := readGzip(out)
			So(err, ShouldBeNil)
			So(dump, ShouldContainSubstring, "INSERT INTO `wp_options`")
		})

		Convey("A clean exit without output falls back to the SQL path", func() {
			script := writeScript(t, "exit 0\n")
			d.lookPath = func(string) (string, error) { return script, nil }
			expectWordPressTable(mock)

			So(d.Dump(context.Background(), out), ShouldBeNil)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})

		Convey("A missing tool falls back to the SQL path", func() {
			d.lookPath = func(string) (string, error) { return "", errors.New("not found") }
			expectWordPressTable(mock)

			So(d.Dump(context.Background(), out), ShouldBeNil)
			So(mock.ExpectationsWereMet(), ShouldBeNil)
		})
	})
}

func expectOrdersTable(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.tables")).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("orders"))
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN pg_catalog.pg_attrdef")).
		WithArgs(`"orders"`, `"orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"attname", "format_type", "attnotnull", "pg_get_expr", "pg_get_serial_sequence"}).
			AddRow("id", "integer", true, "nextval('orders_id_seq'::regclass)", "public.orders_id_seq").
			AddRow("total", "numeric(10,2)", false, nil, nil).
			AddRow("ref", "uuid", true, nil, nil).
			AddRow("meta", "jsonb", false, nil, nil).
			AddRow("placed_at", "timestamp with time zone", false, nil, nil).
			AddRow("receipt", "bytea", false, nil, nil))
	mock.ExpectQuery(regexp.QuoteMeta("pg_get_constraintdef(oid)")).
		WithArgs(`"orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"conname", "pg_get_constraintdef"}).
			AddRow("orders_pkey", "PRIMARY KEY (id)").
			AddRow("orders_ref_key", "UNIQUE (ref)"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders"`)).
		WillReturnRows(sqlmock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn("id").OfType("INT4", int64(0)),
			sqlmock.NewColumn("total").OfType("NUMERIC", []byte{}),
			sqlmock.NewColumn("ref").OfType("UUID", []byte{}),
			sqlmock.NewColumn("meta").OfType("JSONB", []byte{}),
			sqlmock.NewColumn("placed_at").OfType("TIMESTAMPTZ", time.Time{}),
			sqlmock.NewColumn("receipt").OfType("BYTEA", []byte{}),
		).AddRow(
			int64(1),
			[]byte("12.50"),
			[]byte("6f1c2a7e-8d3b-4a51-9c0e-1b2d3e4f5a6b"),
			[]byte(`{"note": "it's"}`),
			time.Date(2024, 1, 2, 10, 0, 0, 0, time.FixedZone("", 2*60*60)),
			[]byte{0xde, 0xad},
		))
	mock.ExpectQuery(regexp.QuoteMeta("IS NOT NULL ORDER BY a.attnum")).
		WithArgs(`"orders"`, `"orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"attname", "pg_get_serial_sequence"}).
			AddRow("id", "public.orders_id_seq"))
}

func TestDumperPostgresFallback(t *testing.T) {
	Convey("Given a Postgres database with a serial key and text-decoded types", t, func() {
		db, mock, err := sqlmock.New()
		So(err, ShouldBeNil)
		defer db.Close()

		cfg := &config.DatabaseConfig{Driver: "postgres", Name: "shop"}
		out := filepath.Join(t.TempDir(), "db.sql.gz")
		expectOrdersTable(mock)

		d := NewDumper(cfg, db, PostgreSQL{}, compressor.NewGzip(), logger.NewNop())
		So(d.Dump(context.Background(), out), ShouldBeNil)
		So(mock.ExpectationsWereMet(), ShouldBeNil)

		dump, err := readGzip(out)
		So(err, ShouldBeNil)

		Convey("The sequence exists before the table that defaults to it", func() {
			So(dump, ShouldContainSubstring, "DROP TABLE IF EXISTS \"orders\" CASCADE;\n"+
				"CREATE SEQUENCE IF NOT EXISTS public.orders_id_seq;\n"+
				"CREATE TABLE \"orders\" (\n"+
				"  \"id\" integer DEFAULT nextval('orders_id_seq'::regclass) NOT NULL,\n")
		})

		Convey("Primary key and unique constraints are kept", func() {
			So(dump, ShouldContainSubstring, "  \"receipt\" bytea,\n"+
				"  CONSTRAINT \"orders_pkey\" PRIMARY KEY (id),\n"+
				"  CONSTRAINT \"orders_ref_key\" UNIQUE (ref)\n);\n")
		})

		Convey("Values restore as their own types", func() {
			So(dump, ShouldContainSubstring, "INSERT INTO \"orders\" VALUES\n"+
				"(1,'12.50','6f1c2a7e-8d3b-4a51-9c0e-1b2d3e4f5a6b','{\"note\": \"it''s\"}',"+
				"'2024-01-02 10:00:00+02:00','\\xdead'::bytea);\n")
			So(dump, ShouldNotContainSubstring, "'\\x31322e3530'::bytea")
		})

		Convey("The sequence is advanced after the rows", func() {
			setval := "SELECT pg_catalog.setval('public.orders_id_seq', COALESCE(MAX(\"id\"), 1), MAX(\"id\") IS NOT NULL) FROM \"orders\";\n"
			So(dump, ShouldContainSubstring, "ALTER SEQUENCE public.orders_id_seq OWNED BY \"orders\".\"id\";\n")
			So(dump, ShouldContainSubstring, setval)
			So(strings.Index(dump, setval), ShouldBeGreaterThan, strings.Index(dump, "INSERT INTO \"orders\""))
		})
	})
}
