package table

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

func TestReadCSVHeaderNormalization(t *testing.T) {
	t.Parallel()

	in := "\uFEFFUser ID, Start Time ,indicator\n1,2023-01-02 03:04:05,heart_rate\n"
	got, err := ReadCSV(strings.NewReader(in), ReadOptions{TrimSpace: true})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	want := []string{"user_id", "start_time", "indicator"}
	if !reflect.DeepEqual(got.Columns, want) {
		t.Fatalf("Columns=%v, want %v", got.Columns, want)
	}
}

func TestReadCSVSkipsMisalignedRows(t *testing.T) {
	t.Parallel()

	in := "a,b\n1,2\nonly-one-field\n3,4,5\n6,7\n"
	got, err := ReadCSV(strings.NewReader(in), ReadOptions{})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if got.NumRows() != 2 {
		t.Fatalf("NumRows()=%d, want 2 (misaligned rows skipped)", got.NumRows())
	}
}

// TestRoundTrip verifies WriteCSV/ReadCSV preserve the table exactly,
// including missing cells.
func TestRoundTrip(t *testing.T) {
	t.Parallel()

	orig := newTestTable(t, []string{"user_id", "value", "note"},
		[]string{"1", "2.5", "ok"},
		[]string{"2", "", "with,comma"},
		[]string{"3", "7", ""},
	)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, orig); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	got, err := ReadCSV(&buf, ReadOptions{})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if !reflect.DeepEqual(got.Columns, orig.Columns) {
		t.Fatalf("Columns=%v, want %v", got.Columns, orig.Columns)
	}
	if !reflect.DeepEqual(got.Rows, orig.Rows) {
		t.Fatalf("Rows=%v, want %v", got.Rows, orig.Rows)
	}
}

func TestReadFileDelimiterFallback(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "semi.csv")
	if err := os.WriteFile(path, []byte("a;b\n1;2\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.NumCols() != 2 || got.NumRows() != 1 {
		t.Fatalf("got %dx%d, want 1x2", got.NumRows(), got.NumCols())
	}
}

func TestReadFileEncodingFallback(t *testing.T) {
	t.Parallel()

	// GBK-encoded content is not valid UTF-8, forcing the encoding
	// fallback chain to kick in.
	utf8Content := "名称,value\n心率,72\n"
	gbk, _, err := transform.Bytes(simplifiedchinese.GBK.NewEncoder(), []byte(utf8Content))
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}

	path := filepath.Join(t.TempDir(), "gbk.csv")
	if err := os.WriteFile(path, gbk, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.NumCols() != 2 {
		t.Fatalf("NumCols()=%d, want 2", got.NumCols())
	}
	if got.Rows[0][0] != "心率" {
		t.Fatalf("Rows[0][0]=%q, want %q", got.Rows[0][0], "心率")
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	t.Parallel()

	tb := newTestTable(t, []string{"a"}, []string{"1"})
	path := filepath.Join(t.TempDir(), "nested", "dir", "out.csv")
	if err := WriteFile(path, tb); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat written file: %v", err)
	}
}
