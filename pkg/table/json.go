package table

import (
	"encoding/json"
	"fmt"
)

type tableJSON struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Error   string   `json:"error,omitempty"`
}

// MarshalJSON encodes the table as {"columns": [...], "rows": [[...], ...]}.
func (t *Table) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}
	out := tableJSON{Columns: t.columns, Rows: t.rows}
	if out.Columns == nil {
		out.Columns = []string{}
	}
	if out.Rows == nil {
		out.Rows = [][]any{}
	}
	if t.err != nil {
		out.Error = t.err.Error()
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (t *Table) UnmarshalJSON(data []byte) error {
	var in tableJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Error != "" {
		*t = Table{err: fmt.Errorf("%s", in.Error)}
		return nil
	}
	decoded, err := New(in.Columns, in.Rows)
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}
