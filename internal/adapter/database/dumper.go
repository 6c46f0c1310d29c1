package database

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/semmidev/sitekeep/internal/config"
	"github.com/semmidev/sitekeep/internal/domain"
	"github.com/semmidev/sitekeep/internal/infrastructure/logger"
)

const defaultChunkRows = 1000

// Dumper writes a gzip-compressed SQL dump. It tries the engine's own dump
// tool first and falls back to reading the schema and rows over database/sql.
type Dumper struct {
	config     *config.DatabaseConfig
	db         *sql.DB
	dialect    Dialect
	compressor domain.Compressor
	logger     *logger.Logger
	chunkRows  int
	lookPath   func(string) (string, error)
}

var _ domain.Dumper = (*Dumper)(nil)

func NewDumper(cfg *config.DatabaseConfig, db *sql.DB, dialect Dialect, compressor domain.Compressor, log *logger.Logger) *Dumper {
	chunk := cfg.ChunkRows
	if chunk <= 0 {
		chunk = defaultChunkRows
	}
	return &Dumper{
		config:     cfg,
		db:         db,
		dialect:    dialect,
		compressor: compressor,
		logger:     log.Named("dumper"),
		chunkRows:  chunk,
		lookPath:   exec.LookPath,
	}
}

func (d *Dumper) Dump(ctx context.Context, outputPath string) error {
	if d.config.UseDumpTool {
		err := d.dumpWithTool(ctx, outputPath)
		if err == nil {
			return nil
		}
		d.logger.Debugf("dump tool unavailable, using fallback: %v", err)
		os.Remove(outputPath)
	}

	if err := d.dumpWithSQL(ctx, outputPath); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("%s dump failed: %w", d.dialect.Name(), err)
	}
	return nil
}

// dumpWithTool succeeds only if the tool exits cleanly and its output file
// exists.
func (d *Dumper) dumpWithTool(ctx context.Context, outputPath string) error {
	rawPath := outputPath + ".raw"
	defer os.Remove(rawPath)

	tc := d.dialect.Tool(d.config, rawPath)
	bin, err := d.lookPath(tc.Name)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, bin, tc.Args...)
	cmd.Env = append(os.Environ(), tc.Env...)

	var output []byte
	if tc.Stdout {
		out, err := os.Create(rawPath)
		if err != nil {
			return fmt.Errorf("failed to create raw dump: %w", err)
		}
		var stderr strings.Builder
		cmd.Stdout = out
		cmd.Stderr = &stderr
		err = cmd.Run()
		out.Close()
		output = []byte(stderr.String())
		if err != nil {
			return fmt.Errorf("%s failed: %w, output: %s", tc.Name, err, string(output))
		}
	} else {
		output, err = cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("%s failed: %w, output: %s", tc.Name, err, string(output))
		}
	}

	if _, err := os.Stat(rawPath); err != nil {
		return fmt.Errorf("%s produced no output: %w", tc.Name, err)
	}

	return d.compressor.Compress(rawPath, outputPath)
}

func (d *Dumper) dumpWithSQL(ctx context.Context, outputPath string) error {
	if d.db == nil {
		return errors.New("no database connection")
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create dump file: %w", err)
	}
	defer f.Close()

	zw, err := d.compressor.NewWriter(f)
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(zw, 64*1024)

	if err := d.writeDump(ctx, bw); err != nil {
		zw.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Sync()
}

func (d *Dumper) writeDump(ctx context.Context, w io.Writer) error {
	tables, err := d.dialect.Tables(ctx, d.db)
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}

	if _, err := io.WriteString(w, d.dialect.Header()); err != nil {
		return err
	}

	for _, table := range tables {
		if err := d.writeTable(ctx, w, table); err != nil {
			return fmt.Errorf("table %s: %w", table, err)
		}
	}

	_, err = io.WriteString(w, d.dialect.Footer())
	return err
}

func (d *Dumper) writeTable(ctx context.Context, w io.Writer, table string) error {
	create, err := d.dialect.CreateStatement(ctx, d.db, table)
	if err != nil {
		return fmt.Errorf("failed to describe: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s\n%s;\n\n", d.dialect.DropStatement(table), create); err != nil {
		return err
	}

	rows, err := d.db.QueryContext(ctx, "SELECT * FROM "+d.dialect.QuoteIdent(table))
	if err != nil {
		return fmt.Errorf("failed to select rows: %w", err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return fmt.Errorf("failed to read column types: %w", err)
	}
	types := make([]string, len(colTypes))
	for i, ct := range colTypes {
		types[i] = ct.DatabaseTypeName()
	}

	prefix := "INSERT INTO " + d.dialect.QuoteIdent(table) + " VALUES\n"
	inChunk := 0
	for rows.Next() {
		vals, err := scanValues(rows)
		if err != nil {
			return err
		}

		sep := ",\n"
		if inChunk == 0 {
			sep = prefix
		}
		if _, err := io.WriteString(w, sep+d.tuple(vals, types)); err != nil {
			return err
		}

		inChunk++
		if inChunk == d.chunkRows {
			if _, err := io.WriteString(w, ";\n"); err != nil {
				return err
			}
			inChunk = 0
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if inChunk > 0 {
		if _, err := io.WriteString(w, ";\n"); err != nil {
			return err
		}
	}
	rows.Close()

	after, err := d.dialect.AfterData(ctx, d.db, table)
	if err != nil {
		return fmt.Errorf("failed to read sequences: %w", err)
	}
	_, err = io.WriteString(w, after+"\n")
	return err
}

func (d *Dumper) tuple(vals []any, types []string) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		var typ string
		if i < len(types) {
			typ = types[i]
		}
		parts[i] = Literal(d.dialect, v, typ)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func scanValues(rows *sql.Rows) ([]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return vals, nil
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func asString(v any) string {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
