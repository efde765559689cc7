package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// String renders the whole table as aligned text with a leading row index.
func (t *Table) String() string {
	if t == nil {
		return "<nil table>"
	}
	if t.err != nil {
		return fmt.Sprintf("<table error: %v>", t.err)
	}
	if len(t.rows) == 0 {
		return fmt.Sprintf("Empty table\nColumns: %v\nIndex: []", t.columns)
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	header := make([]string, 0, len(t.columns)+1)
	header = append(header, "")
	header = append(header, t.columns...)
	fmt.Fprintln(w, strings.Join(header, "\t")+"\t")
	for i, row := range t.rows {
		cells := make([]string, 0, len(row)+1)
		cells = append(cells, fmt.Sprint(i))
		for _, v := range row {
			cells = append(cells, formatCell(v))
		}
		fmt.Fprintln(w, strings.Join(cells, "\t")+"\t")
	}
	_ = w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// Preview renders the first n rows.
func (t *Table) Preview(n int) string {
	return t.Head(n).String()
}

// FromCSV reads a table whose first record is the header row.
func FromCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}

	var rows [][]any
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		row := make([]any, len(header))
		for j := range header {
			if j < len(rec) {
				row[j] = ParseCell(rec[j])
			}
		}
		rows = append(rows, row)
	}
	return New(header, rows)
}

// WriteCSV writes the table with a header row.
func (t *Table) WriteCSV(w io.Writer) error {
	if err := t.Err(); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.columns); err != nil {
		return err
	}
	for _, row := range t.rows {
		rec := make([]string, len(row))
		for j, v := range row {
			if v != nil {
				rec[j] = formatCell(v)
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
