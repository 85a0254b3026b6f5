package dataset

import (
	"time"

	"github.com/jonwraymond/dataops/warehouse"
)

// Shape is the row and column count of a dataset.
type Shape struct {
	Rows    int `json:"rows" msgpack:"rows"`
	Columns int `json:"columns" msgpack:"columns"`
}

// Metadata is every stored field of a dataset except its payload.
type Metadata struct {
	Shape       Shape             `json:"shape"`
	Columns     []string          `json:"columns"`
	ColumnTypes map[string]string `json:"column_types"`
	Preview     []map[string]any  `json:"preview"`
	SizeBytes   int64             `json:"size_bytes"`
	CreatedAt   time.Time         `json:"created_at"`
	QueryText   string            `json:"query_text"`
	Request     Request           `json:"request"`
}

// Entry is a stored dataset. Entries are immutable once written.
type Entry struct {
	Metadata

	// Payload is the encoded Table.
	Payload []byte
}

// Table is the decoded payload.
type Table struct {
	Columns []string `json:"columns" msgpack:"columns"`
	Rows    [][]any  `json:"rows" msgpack:"rows"`
}

// LoadResult is returned by Cache.Load.
type LoadResult struct {
	Key      string   `json:"dataset_key"`
	Cached   bool     `json:"cached"`
	Metadata Metadata `json:"metadata"`
}

func newEntry(req Request, q warehouse.Query, res *warehouse.Result, previewRows int, createdAt time.Time) (*Entry, error) {
	payload, err := encodePayload(&Table{Columns: res.Columns, Rows: res.Rows})
	if err != nil {
		return nil, err
	}

	n := min(previewRows, len(res.Rows))
	preview := make([]map[string]any, n)
	for i := range n {
		record := make(map[string]any, len(res.Columns))
		for j, col := range res.Columns {
			record[col] = res.Rows[i][j]
		}
		preview[i] = record
	}

	types := make(map[string]string, len(res.Columns))
	for _, col := range res.Columns {
		types[col] = res.ColumnTypes[col]
	}

	return &Entry{
		Metadata: Metadata{
			Shape:       Shape{Rows: len(res.Rows), Columns: len(res.Columns)},
			Columns:     res.Columns,
			ColumnTypes: types,
			Preview:     preview,
			SizeBytes:   int64(len(payload)),
			CreatedAt:   createdAt.UTC(),
			QueryText:   q.Text,
			Request:     req,
		},
		Payload: payload,
	}, nil
}
