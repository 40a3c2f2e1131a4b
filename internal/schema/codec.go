// Package schema implements the binary schema codec and the mapping between
// catalogue column types and Arrow types.
package schema

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/linkedin/goavro/v2"

	"lakehouse/internal/domain"
)

// lengthPrefixSize is the size of the little-endian record length that precedes
// every column record.
const lengthPrefixSize = 4

var columnCodec = mustColumnCodec()

func mustColumnCodec() *goavro.Codec {
	symbols := make([]string, len(domain.DataTypes))
	for i, t := range domain.DataTypes {
		symbols[i] = `"` + string(t) + `"`
	}
	spec := `{
		"type": "record",
		"name": "Column",
		"namespace": "lakehouse",
		"fields": [
			{"name": "name", "type": "string"},
			{"name": "datatype", "type": {"type": "enum", "name": "DataType", "symbols": [` + strings.Join(symbols, ",") + `]}},
			{"name": "nullable", "type": "boolean"},
			{"name": "unique", "type": "boolean"},
			{"name": "references", "type": ["null", "string"], "default": null}
		]
	}`
	codec, err := goavro.NewCodec(spec)
	if err != nil {
		panic(fmt.Sprintf("schema: build column codec: %v", err))
	}
	return codec
}

// Encode serializes s as a concatenation of length-framed column records.
// The empty schema encodes to a zero-length buffer.
func Encode(s domain.Schema) ([]byte, error) {
	buf := make([]byte, 0, len(s)*32)
	for i, col := range s {
		rec, err := EncodeColumn(col)
		if err != nil {
			return nil, fmt.Errorf("encode column %d (%q): %w", i, col.Name, err)
		}
		if uint64(len(rec)) > math.MaxUint32 {
			return nil, fmt.Errorf("encode column %d (%q): record too large", i, col.Name)
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(rec))) //nolint:gosec // bounded above
		buf = append(buf, rec...)
	}
	return buf, nil
}

// Decode parses a buffer produced by Encode. Malformed framing or column
// payloads yield a *domain.CorruptSchemaError.
func Decode(buf []byte) (domain.Schema, error) {
	out := domain.Schema{}
	for off := 0; off < len(buf); {
		if len(buf)-off < lengthPrefixSize {
			return nil, domain.ErrCorruptSchema(nil, "truncated length prefix at offset %d", off)
		}
		n := binary.LittleEndian.Uint32(buf[off:])
		off += lengthPrefixSize
		if uint64(n) > uint64(len(buf)-off) {
			return nil, domain.ErrCorruptSchema(nil, "record length %d at offset %d exceeds buffer of %d bytes", n, off-lengthPrefixSize, len(buf))
		}
		col, err := DecodeColumn(buf[off : off+int(n)])
		if err != nil {
			return nil, domain.ErrCorruptSchema(err, "column %d", len(out))
		}
		out = append(out, col)
		off += int(n)
	}
	return out, nil
}

// EncodeColumn serializes one column to its Avro binary record.
func EncodeColumn(c domain.Column) ([]byte, error) {
	if c.Name == "" {
		return nil, domain.ErrValidation("column name must not be empty")
	}
	if !c.DataType.Valid() {
		return nil, domain.ErrValidation("unknown data type %q", c.DataType)
	}
	var refs interface{}
	if c.References != nil {
		refs = goavro.Union("string", *c.References)
	}
	return columnCodec.BinaryFromNative(nil, map[string]interface{}{
		"name":       c.Name,
		"datatype":   string(c.DataType),
		"nullable":   c.Nullable,
		"unique":     c.Unique,
		"references": refs,
	})
}

// DecodeColumn parses one Avro column record. The record must be consumed
// exactly.
func DecodeColumn(rec []byte) (col domain.Column, err error) {
	// goavro is not guaranteed panic-free on hostile input.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode column record: %v", r)
		}
	}()

	native, rest, err := columnCodec.NativeFromBinary(rec)
	if err != nil {
		return domain.Column{}, fmt.Errorf("decode column record: %w", err)
	}
	if len(rest) != 0 {
		return domain.Column{}, fmt.Errorf("decode column record: %d trailing bytes", len(rest))
	}
	m, ok := native.(map[string]interface{})
	if !ok {
		return domain.Column{}, fmt.Errorf("decode column record: unexpected %T", native)
	}

	name, _ := m["name"].(string)
	dt, _ := m["datatype"].(string)
	nullable, _ := m["nullable"].(bool)
	unique, _ := m["unique"].(bool)
	col = domain.Column{
		Name:     name,
		DataType: domain.DataType(dt),
		Nullable: nullable,
		Unique:   unique,
	}
	if u, ok := m["references"].(map[string]interface{}); ok {
		if s, ok := u["string"].(string); ok {
			col.References = &s
		}
	}
	if col.Name == "" {
		return domain.Column{}, fmt.Errorf("decode column record: empty column name")
	}
	if !col.DataType.Valid() {
		return domain.Column{}, fmt.Errorf("decode column record: unknown data type %q", dt)
	}
	return col, nil
}
