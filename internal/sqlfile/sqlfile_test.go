package sqlfile

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/elefantsql/elefant/internal/ddlgen"
	"github.com/elefantsql/elefant/internal/schema"
)

func TestWriteRowQuotesTextAndPassesNumbersThrough(t *testing.T) {
	var buf bytes.Buffer
	colTypes := []simpleType{typeNumber, typeText, typeBool}
	if err := writeRow(&buf, colTypes, []byte("42\tit's fine\tt")); err != nil {
		t.Fatalf("writeRow: %v", err)
	}
	want := `(42, E'it''s fine', true)`
	if buf.String() != want {
		t.Errorf("writeRow = %q, want %q", buf.String(), want)
	}
}

func TestWriteRowHandlesNullAndSpecialFloats(t *testing.T) {
	var buf bytes.Buffer
	colTypes := []simpleType{typeNumber, typeNumber}
	if err := writeRow(&buf, colTypes, []byte(`\N` + "\t" + "NaN")); err != nil {
		t.Fatalf("writeRow: %v", err)
	}
	want := `(null, 'NaN')`
	if buf.String() != want {
		t.Errorf("writeRow = %q, want %q", buf.String(), want)
	}
}

func TestApplyTransactionalStatementOpensNewChunkAtLimit(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf, ddlgen.NewQuoter(nil), Options{MaxCommandsPerChunk: 2, ChunkSeparator: "abc"})

	for i := 0; i < 3; i++ {
		if err := sink.ApplyTransactionalStatement(nil, "select 1;"); err != nil {
			t.Fatalf("ApplyTransactionalStatement: %v", err)
		}
	}

	out := buf.String()
	wantSeparator := "-- chunk-separator-abc --"
	if got := strings.Count(out, wantSeparator); got != 2 {
		t.Errorf("expected 2 chunk separators (one per chunk of <=2 statements), got %d in:\n%s", got, out)
	}
}

func TestColumnSimplifiedTypesSkipsGeneratedColumns(t *testing.T) {
	table := &schema.PostgresTable{
		Columns: []*schema.PostgresColumn{
			{Name: "id", OrdinalPosition: 1, DataType: "int4"},
			{Name: "computed", OrdinalPosition: 2, DataType: "int4", GeneratedExpression: "id * 2"},
			{Name: "active", OrdinalPosition: 3, DataType: "bool"},
		},
	}
	got := columnSimplifiedTypes(table)
	want := []simpleType{typeNumber, typeBool}
	if len(got) != len(want) {
		t.Fatalf("columnSimplifiedTypes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestReadUntilSeparatorLineSplitsOnExactMatch(t *testing.T) {
	input := "select 1;\nselect 2;\n-- chunk-separator-xyz --\nselect 3;\n"
	r := bufio.NewReader(strings.NewReader(input))
	chunk, atEOF, err := readUntilSeparatorLine(r, "-- chunk-separator-xyz --\n")
	if err != nil {
		t.Fatalf("readUntilSeparatorLine: %v", err)
	}
	if atEOF {
		t.Fatal("expected more data after the separator")
	}
	if chunk != "select 1;\nselect 2;\n" {
		t.Errorf("chunk = %q", chunk)
	}

	rest, atEOF2, err := readUntilSeparatorLine(r, "-- chunk-separator-xyz --\n")
	if err != nil {
		t.Fatalf("readUntilSeparatorLine: %v", err)
	}
	if !atEOF2 {
		t.Fatal("expected EOF at end of input")
	}
	if rest != "select 3;\n" {
		t.Errorf("rest = %q", rest)
	}
}
