package synth

import (
	"synthgen/internal/table"
)

// SDType is the modeling type of a column.
type SDType string

const (
	SDNumerical   SDType = "numerical"
	SDCategorical SDType = "categorical"
	SDDatetime    SDType = "datetime"
	SDID          SDType = "id"
)

// ColumnMeta describes one column for modeling.
type ColumnMeta struct {
	Name   string
	SDType SDType
}

// Metadata describes a table for the synthesizers.
type Metadata struct {
	Columns []ColumnMeta

	// SequenceKey and SequenceIndex are set for sequential data only.
	SequenceKey   string
	SequenceIndex string
}

// DetectMetadata derives metadata from the table's assigned kinds.
// Unknown kinds fall back to categorical, mirroring the preprocessing
// contract that coercion failure means categorical treatment.
func DetectMetadata(t *table.Table) Metadata {
	m := Metadata{}
	for i, name := range t.Columns {
		var st SDType
		switch t.Kinds[i] {
		case table.KindNumeric:
			st = SDNumerical
		case table.KindTimestamp:
			st = SDDatetime
		case table.KindID:
			st = SDID
		default:
			st = SDCategorical
		}
		m.Columns = append(m.Columns, ColumnMeta{Name: name, SDType: st})
	}
	return m
}

// DetectSequentialMetadata marks user_id as the sequence key and the
// first available index column as the sequence index.
func DetectSequentialMetadata(t *table.Table) Metadata {
	m := DetectMetadata(t)
	if t.HasColumn("user_id") {
		m.SequenceKey = "user_id"
	}
	for _, c := range []string{"sequence_datetime", "sequence_index"} {
		if t.HasColumn(c) {
			m.SequenceIndex = c
			break
		}
	}
	return m
}
