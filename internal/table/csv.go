package table

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ReadOptions control CSV decoding.
type ReadOptions struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune
	// TrimSpace trims edge whitespace from every cell.
	TrimSpace bool
	// LazyQuotes is passed through to encoding/csv.
	LazyQuotes bool
}

// ReadCSV parses CSV from r into a Table.
//
// Header names are normalized the same way for every input: edge
// whitespace trimmed, a UTF-8 BOM stripped from the first header,
// lowercased, spaces replaced with underscores. Blank cells become
// the missing value "". Rows whose field count does not match the
// header are skipped; decoding is best-effort and only a header
// failure is fatal.
func ReadCSV(r io.Reader, opt ReadOptions) (*Table, error) {
	comma := opt.Comma
	if comma == 0 {
		comma = ','
	}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.LazyQuotes = opt.LazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	hdr, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make([]string, len(hdr))
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		cols[i] = strings.ReplaceAll(strings.ToLower(h), " ", "_")
	}

	t := New(cols)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			continue
		}
		if len(rec) != len(cols) {
			continue
		}
		row := make([]string, len(cols))
		for i, v := range rec {
			if opt.TrimSpace {
				v = strings.TrimSpace(v)
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
}

// readEncodings are tried in order by ReadFile. The order mirrors the
// common encodings of the source exports: UTF-8 first, then the
// simplified-Chinese codecs, then Latin-1 as the catch-all.
var readEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"utf-8", unicode.UTF8},
	{"gbk", simplifiedchinese.GBK},
	{"gb18030", simplifiedchinese.GB18030},
	{"latin-1", charmap.ISO8859_1},
}

var readDelimiters = []rune{',', ';', '\t'}

// ReadFile loads a CSV file, trying each known encoding and delimiter
// combination until one parses into more than a single column. This
// matches how the upstream exports are produced: usually UTF-8 with
// commas, occasionally GBK or semicolon-separated.
func ReadFile(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, e := range readEncodings {
		// The UTF-8 decoder substitutes U+FFFD for invalid bytes
		// instead of failing, which would mask a GBK file as garbled
		// UTF-8. Validate up front so the fallback chain is reachable.
		if e.name == "utf-8" && !utf8.Valid(raw) {
			continue
		}
		decoded, err := decodeAll(raw, e.enc)
		if err != nil {
			lastErr = err
			continue
		}
		for _, d := range readDelimiters {
			t, err := ReadCSV(bytes.NewReader(decoded), ReadOptions{Comma: d, TrimSpace: true, LazyQuotes: true})
			if err != nil {
				lastErr = err
				continue
			}
			if t.NumCols() > 1 {
				return t, nil
			}
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no encoding/delimiter combination yields more than one column")
	}
	return nil, fmt.Errorf("read %s: %w", path, lastErr)
}

func decodeAll(raw []byte, enc encoding.Encoding) ([]byte, error) {
	out, _, err := transform.Bytes(enc.NewDecoder(), raw)
	return out, err
}

// WriteCSV writes the table to w. Missing cells are written as empty
// fields, so a round-trip through ReadCSV preserves the row count and
// column set exactly.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the table to path, creating parent directories.
func WriteFile(path string, t *Table) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, t); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
