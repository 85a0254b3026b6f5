package dataset

import (
	"bytes"
	"fmt"
	"slices"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jonwraymond/dataops/warehouse"
)

// Stored entries are the 4-byte magic followed by a msgpack entryRecord.
// Bump entryVersion when entryRecord changes incompatibly; older entries
// then read as missing and are rebuilt on the next load.
var entryMagic = []byte("DSE1")

const entryVersion = 1

type entryRecord struct {
	Version     int               `msgpack:"version"`
	Shape       Shape             `msgpack:"shape"`
	Columns     []string          `msgpack:"columns"`
	ColumnTypes map[string]string `msgpack:"column_types"`
	Preview     []map[string]any  `msgpack:"preview"`
	SizeBytes   int64             `msgpack:"size_bytes"`
	CreatedAt   time.Time         `msgpack:"created_at"`
	QueryText   string            `msgpack:"query_text"`
	Request     Request           `msgpack:"request"`
	Payload     []byte            `msgpack:"payload"`
}

func encodeEntry(e *Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(entryMagic)

	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(&entryRecord{
		Version:     entryVersion,
		Shape:       e.Shape,
		Columns:     e.Columns,
		ColumnTypes: e.ColumnTypes,
		Preview:     e.Preview,
		SizeBytes:   e.SizeBytes,
		CreatedAt:   e.CreatedAt,
		QueryText:   e.QueryText,
		Request:     e.Request,
		Payload:     e.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("dataset: encode entry: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeEntry parses and checks a stored entry. Every failure wraps
// errCorruptEntry.
func decodeEntry(data []byte) (*Entry, error) {
	body, ok := bytes.CutPrefix(data, entryMagic)
	if !ok {
		return nil, fmt.Errorf("%w: bad magic", errCorruptEntry)
	}

	var rec entryRecord
	if err := newDecoder(body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptEntry, err)
	}
	if rec.Version != entryVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", errCorruptEntry, rec.Version)
	}
	if rec.SizeBytes != int64(len(rec.Payload)) {
		return nil, fmt.Errorf("%w: size %d does not match payload of %d bytes", errCorruptEntry, rec.SizeBytes, len(rec.Payload))
	}
	if rec.Shape.Columns != len(rec.Columns) || len(rec.Preview) > rec.Shape.Rows {
		return nil, fmt.Errorf("%w: shape %+v does not match metadata", errCorruptEntry, rec.Shape)
	}

	for _, record := range rec.Preview {
		for k, v := range record {
			record[k] = warehouse.NormalizeValue(v)
		}
	}

	return &Entry{
		Metadata: Metadata{
			Shape:       rec.Shape,
			Columns:     rec.Columns,
			ColumnTypes: rec.ColumnTypes,
			Preview:     rec.Preview,
			SizeBytes:   rec.SizeBytes,
			CreatedAt:   rec.CreatedAt.UTC(),
			QueryText:   rec.QueryText,
			Request:     rec.Request,
		},
		Payload: rec.Payload,
	}, nil
}

func encodePayload(t *Table) ([]byte, error) {
	b, err := msgpack.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("dataset: encode payload: %w", err)
	}
	return b, nil
}

// decodeTable decodes e's payload and checks it against e's shape.
func decodeTable(e *Entry) (*Table, error) {
	var t Table
	if err := newDecoder(e.Payload).Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: payload: %w", errCorruptEntry, err)
	}
	if len(t.Rows) != e.Shape.Rows || !slices.Equal(t.Columns, e.Columns) {
		return nil, fmt.Errorf("%w: payload has %d rows and columns %v, shape says %+v", errCorruptEntry, len(t.Rows), t.Columns, e.Shape)
	}
	for _, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return nil, fmt.Errorf("%w: row has %d values for %d columns", errCorruptEntry, len(row), len(t.Columns))
		}
		for i, v := range row {
			row[i] = warehouse.NormalizeValue(v)
		}
	}
	return &t, nil
}

func newDecoder(b []byte) *msgpack.Decoder {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	return dec
}
