// Package sqlfile implements spec.md §4.9: a deterministic, chunked SQL
// script as a copier.Destination, plus the reader that replays one back
// against a live connection. Grounded on
// original_source/elefant-tools/src/storage/sql_file.rs's SqlFile/
// apply_sql_file, translated from its async-Rust single-struct-two-impls
// shape into a plain io.Writer-backed Sink plus a standalone
// ApplySQLFile function.
package sqlfile

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/elefantsql/elefant/internal/copier"
	"github.com/elefantsql/elefant/internal/ddlgen"
	"github.com/elefantsql/elefant/internal/pgclient"
	"github.com/elefantsql/elefant/internal/schema"
)

// DataMode selects how row data is rendered: a batch of INSERT
// statements, or a re-playable COPY ... FROM STDIN block.
type DataMode int

const (
	InsertStatements DataMode = iota
	CopyStatements
)

// Options configures one sql file, spec.md §4.9.
type Options struct {
	MaxRowsPerInsert    int
	ChunkSeparator      string // a UUID string; generated if empty
	MaxCommandsPerChunk int
	DataMode            DataMode
}

func (o Options) withDefaults() Options {
	if o.MaxRowsPerInsert <= 0 {
		o.MaxRowsPerInsert = 1000
	}
	if o.MaxCommandsPerChunk <= 0 {
		o.MaxCommandsPerChunk = 10
	}
	if o.ChunkSeparator == "" {
		o.ChunkSeparator = uuid.New().String()
	}
	return o
}

const chunkSeparatorPrefix = "-- chunk-separator-"

// Sink writes a sequence of DDL statements and table data to w in the
// chunked format, implementing copier.Destination. Not safe for
// concurrent use — SupportsParallel reports false, per spec.md §4.9's
// sequential-only sink contract.
type Sink struct {
	w       io.Writer
	quoter  *ddlgen.Quoter
	opts    Options
	isEmpty bool
	count   int

	separatorLine []byte // "-- chunk-separator-<uuid> --", no trailing newline
}

// NewSink wraps w (typically a buffered *os.File) as a copier.Destination.
func NewSink(w io.Writer, quoter *ddlgen.Quoter, opts Options) *Sink {
	opts = opts.withDefaults()
	return &Sink{
		w:             w,
		quoter:        quoter,
		opts:          opts,
		isEmpty:       true,
		separatorLine: []byte(chunkSeparatorPrefix + opts.ChunkSeparator + " --"),
	}
}

func (s *Sink) SupportedFormats() []schema.DataFormat { return []schema.DataFormat{schema.DataFormatText} }
func (s *Sink) IdentifierQuoter() *ddlgen.Quoter       { return s.quoter }
func (s *Sink) SupportsParallel() bool                 { return false }

func (s *Sink) BeginTransaction(ctx context.Context) error  { return nil }
func (s *Sink) CommitTransaction(ctx context.Context) error { return nil }

func (s *Sink) writeSeparator() error {
	if _, err := s.w.Write(s.separatorLine); err != nil {
		return err
	}
	_, err := s.w.Write([]byte("\n"))
	return err
}

// ApplyTransactionalStatement writes one statement, opening a new chunk
// every MaxCommandsPerChunk statements, grounded on sql_file.rs's
// apply_transactional_statement.
func (s *Sink) ApplyTransactionalStatement(ctx context.Context, stmt string) error {
	if s.count%s.opts.MaxCommandsPerChunk == 0 {
		if !s.isEmpty {
			if _, err := s.w.Write([]byte("\n\n")); err != nil {
				return err
			}
		}
		if err := s.writeSeparator(); err != nil {
			return err
		}
		s.isEmpty = true
	}

	if s.isEmpty {
		if _, err := io.WriteString(s.w, stmt); err != nil {
			return err
		}
		s.isEmpty = false
	} else {
		if _, err := s.w.Write([]byte("\n\n")); err != nil {
			return err
		}
		if _, err := io.WriteString(s.w, stmt); err != nil {
			return err
		}
	}
	s.count++
	return nil
}

// ApplyNonTransactionalStatement is identical to ApplyTransactionalStatement
// here — a file has no notion of a server-side transaction, per
// sql_file.rs.
func (s *Sink) ApplyNonTransactionalStatement(ctx context.Context, stmt string) error {
	return s.ApplyTransactionalStatement(ctx, stmt)
}

// ApplyData renders one table's COPY text stream as either a run of
// INSERT statements or a replayable COPY block, grounded on sql_file.rs's
// write_data_stream_to_insert_statements/write_data_stream_to_copy_statements.
func (s *Sink) ApplyData(ctx context.Context, sch *schema.PostgresSchema, t *schema.PostgresTable, format schema.DataFormat, data copier.TableData) error {
	if s.count > 0 {
		if _, err := s.w.Write([]byte("\n")); err != nil {
			return err
		}
		s.count = 0
	}
	if s.opts.DataMode == CopyStatements {
		return s.writeCopyStatements(sch, t, data)
	}
	return s.writeInsertStatements(sch, t, data)
}

// asReader adapts a copier.TableData (io.WriterTo only) into an io.Reader
// so the data-rendering helpers below can scan it line by line.
func asReader(data copier.TableData) (io.Reader, func() error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := data.WriteTo(pw)
		pw.CloseWithError(err)
		done <- err
	}()
	return pr, func() error {
		err := <-done
		if err == io.EOF {
			return nil
		}
		return err
	}
}

type simpleType int

const (
	typeText simpleType = iota
	typeNumber
	typeBool
)

// columnSimplifiedTypes classifies each non-generated column (in COPY
// column order) the way values.rs's get_simplified_data_type does, so
// row rendering knows when it's safe to skip E'' quoting.
func columnSimplifiedTypes(t *schema.PostgresTable) []simpleType {
	cols := make([]*schema.PostgresColumn, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.GeneratedExpression == "" {
			cols = append(cols, c)
		}
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].OrdinalPosition < cols[j].OrdinalPosition })
	out := make([]simpleType, len(cols))
	for i, c := range cols {
		switch c.DataType {
		case "int2", "int4", "int8", "float4", "float8":
			out[i] = typeNumber
		case "bool":
			out[i] = typeBool
		default:
			out[i] = typeText
		}
	}
	return out
}

func (s *Sink) writeInsertPrologue(sch *schema.PostgresSchema, t *schema.PostgresTable) error {
	cols := make([]*schema.PostgresColumn, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.GeneratedExpression == "" {
			cols = append(cols, c)
		}
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].OrdinalPosition < cols[j].OrdinalPosition })
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = s.quoter.Quote(c.Name, ddlgen.ColumnName)
	}
	_, err := fmt.Fprintf(s.w, "insert into %s (%s) values\n", s.quoter.QualifiedName(sch.Name, t.Name), strings.Join(names, ", "))
	return err
}

func (s *Sink) writeInsertStatements(sch *schema.PostgresSchema, t *schema.PostgresTable, data copier.TableData) error {
	colTypes := columnSimplifiedTypes(t)
	reader, wait := asReader(data)
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)

	count := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if count == 0 {
			if _, err := s.w.Write([]byte("\n")); err != nil {
				return err
			}
			if err := s.writeSeparator(); err != nil {
				return err
			}
		}
		if count%s.opts.MaxRowsPerInsert == 0 {
			if count > 0 {
				if _, err := s.w.Write([]byte(";\n")); err != nil {
					return err
				}
				if err := s.writeSeparator(); err != nil {
					return err
				}
			}
			if err := s.writeInsertPrologue(sch, t); err != nil {
				return err
			}
			count = 0
		} else {
			if _, err := s.w.Write([]byte(",\n")); err != nil {
				return err
			}
		}
		count++
		if err := writeRow(s.w, colTypes, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if count > 0 {
		if _, err := s.w.Write([]byte(";\n")); err != nil {
			return err
		}
	}
	return wait()
}

func (s *Sink) writeCopyStatements(sch *schema.PostgresSchema, t *schema.PostgresTable, data copier.TableData) error {
	reader, wait := asReader(data)
	buf := make([]byte, 64*1024)
	wrote := false
	for {
		n, readErr := reader.Read(buf)
		if n > 0 {
			if !wrote {
				if _, err := s.w.Write([]byte("\n")); err != nil {
					return err
				}
				if err := s.writeSeparator(); err != nil {
					return err
				}
				cmd := ddlgen.CopyInCommand(t, sch, schema.DataFormatText, s.quoter)
				if _, err := io.WriteString(s.w, cmd); err != nil {
					return err
				}
				if _, err := s.w.Write([]byte("\n")); err != nil {
					return err
				}
				if err := s.writeSeparator(); err != nil {
					return err
				}
				wrote = true
			}
			if _, err := s.w.Write(buf[:n]); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	if err := wait(); err != nil {
		return err
	}
	if wrote {
		if _, err := s.w.Write([]byte("\\.\n")); err != nil {
			return err
		}
	}
	return nil
}

// writeRow renders one COPY text row as a parenthesized SQL value list,
// grounded on sql_file.rs's write_row/write_column.
func writeRow(w io.Writer, colTypes []simpleType, line []byte) error {
	parts := bytes.Split(line, []byte("\t"))
	var buf bytes.Buffer
	buf.WriteByte('(')
	for i, p := range parts {
		if i > 0 {
			buf.WriteString(", ")
		}
		ct := typeText
		if i < len(colTypes) {
			ct = colTypes[i]
		}
		writeColumn(&buf, p, ct)
	}
	buf.WriteByte(')')
	_, err := w.Write(buf.Bytes())
	return err
}

var copyNull = []byte(`\N`)

func writeColumn(buf *bytes.Buffer, raw []byte, ct simpleType) {
	if bytes.Equal(raw, copyNull) {
		buf.WriteString("null")
		return
	}
	switch ct {
	case typeNumber:
		writeNumberColumn(buf, raw)
	case typeBool:
		writeBoolColumn(buf, raw)
	default:
		writeTextColumn(buf, raw)
	}
}

func writeBoolColumn(buf *bytes.Buffer, raw []byte) {
	if len(raw) > 0 && raw[0] == 't' {
		buf.WriteString("true")
	} else {
		buf.WriteString("false")
	}
}

func writeTextColumn(buf *bytes.Buffer, raw []byte) {
	buf.WriteString("E'")
	if bytes.ContainsRune(raw, '\'') {
		buf.WriteString(strings.ReplaceAll(string(raw), "'", "''"))
	} else {
		buf.Write(raw)
	}
	buf.WriteByte('\'')
}

func writeNumberColumn(buf *bytes.Buffer, raw []byte) {
	switch string(raw) {
	case "NaN", "Infinity", "-Infinity":
		buf.WriteByte('\'')
		buf.Write(raw)
		buf.WriteByte('\'')
	default:
		buf.Write(raw)
	}
}

// ApplySQLFile replays a sql file written by Sink against client, per
// spec.md §4.9's reader path, grounded on sql_file.rs's apply_sql_file.
// A file that doesn't start with the chunk-separator marker is applied
// as one plain statement, matching the original's fallback branch.
func ApplySQLFile(ctx context.Context, r *bufio.Reader, client *pgclient.Client) error {
	firstLine, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return err
	}
	if firstLine == "" {
		return nil
	}
	if !strings.HasPrefix(firstLine, chunkSeparatorPrefix) {
		rest, rerr := io.ReadAll(r)
		if rerr != nil {
			return rerr
		}
		return execSimple(ctx, client, firstLine+string(rest))
	}

	separator := firstLine
	for {
		chunk, atEOF, rerr := readUntilSeparatorLine(r, separator)
		if rerr != nil {
			return rerr
		}
		if chunk != "" {
			if strings.HasPrefix(chunk, "copy ") && strings.HasSuffix(chunk, " from stdin with (format text, header false);\n") {
				if err := replayCopyIn(ctx, client, chunk, r); err != nil {
					return err
				}
			} else {
				if err := execSimple(ctx, client, chunk); err != nil {
					return err
				}
			}
		}
		if atEOF {
			return nil
		}
	}
}

// readUntilSeparatorLine accumulates lines into one chunk until a line
// exactly matching separator is seen (not included in the chunk) or EOF
// is reached.
func readUntilSeparatorLine(r *bufio.Reader, separator string) (string, bool, error) {
	var sb strings.Builder
	for {
		line, err := r.ReadString('\n')
		if line == separator {
			return sb.String(), false, nil
		}
		sb.WriteString(line)
		if err == io.EOF {
			return sb.String(), true, nil
		}
		if err != nil {
			return sb.String(), true, err
		}
	}
}

// replayCopyIn opens the COPY FROM STDIN command found in copyCmd and
// forwards the raw payload lines that follow, up to the `\.` terminator.
func replayCopyIn(ctx context.Context, client *pgclient.Client, copyCmd string, r *bufio.Reader) error {
	w, err := client.CopyFrom(ctx, copyCmd)
	if err != nil {
		return err
	}
	for {
		line, err := r.ReadString('\n')
		if strings.HasPrefix(line, "\\.") {
			break
		}
		if len(line) > 0 {
			if _, werr := w.Write([]byte(line)); werr != nil {
				w.Abort(werr.Error())
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			w.Abort(err.Error())
			return err
		}
	}
	return w.Close()
}

// execSimple runs stmt as a simple-query statement and drains its
// result, surfacing the first server error observed.
func execSimple(ctx context.Context, c *pgclient.Client, stmt string) error {
	rs, err := c.Query(ctx, stmt)
	if err != nil {
		return err
	}
	for {
		_, ok, err := rs.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}
