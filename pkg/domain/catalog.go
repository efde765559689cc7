package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Operator describes one entry of the operator catalog used to render the
// reference steps of the initial prompt.
type Operator struct {
	Name        string `json:"name" yaml:"name" mapstructure:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Category    string `json:"category,omitempty" yaml:"category,omitempty" mapstructure:"category"`
}

// Catalog maps operator names to their descriptions.
type Catalog map[string]Operator

// TableMeta carries facts about how the working table was loaded.
type TableMeta struct {
	HeaderRowsSkipped int    `json:"header_rows_skipped,omitempty" mapstructure:"header_rows_skipped"`
	HasMergedCells    bool   `json:"has_merged_cells,omitempty" mapstructure:"has_merged_cells"`
	TotalRows         int    `json:"total_rows,omitempty" mapstructure:"total_rows"`
	Error             string `json:"error,omitempty" mapstructure:"error"`
}

// SchemaHint lists the columns a schema-selection step judged relevant.
type SchemaHint struct {
	SelectedColumns []string `json:"selected_columns,omitempty" yaml:"selected_columns,omitempty" mapstructure:"selected_columns"`
}

// metaInfoKey is the nested key some loaders wrap their metadata in.
const metaInfoKey = "meta_info"

// DecodeTableMeta decodes loosely typed loader metadata. A nested "meta_info"
// map takes precedence over top-level keys. Unknown keys are ignored.
func DecodeTableMeta(raw map[string]any) (TableMeta, error) {
	var meta TableMeta
	if raw == nil {
		return meta, nil
	}
	src := raw
	if nested, ok := raw[metaInfoKey].(map[string]any); ok {
		src = nested
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &meta,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return meta, err
	}
	if err := dec.Decode(src); err != nil {
		return meta, fmt.Errorf("decode table metadata: %w", err)
	}
	return meta, nil
}

// DecodeCatalog decodes an operator catalog from a loosely typed map such as a
// parsed JSON or YAML document. Entries without a name take their key.
func DecodeCatalog(raw map[string]any) (Catalog, error) {
	out := make(Catalog, len(raw))
	for key, v := range raw {
		var op Operator
		if err := mapstructure.Decode(v, &op); err != nil {
			return nil, fmt.Errorf("decode operator %q: %w", key, err)
		}
		if op.Name == "" {
			op.Name = key
		}
		out[key] = op
	}
	return out, nil
}
