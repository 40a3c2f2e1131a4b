package schema

import (
	"github.com/apache/arrow-go/v18/arrow"

	"lakehouse/internal/domain"
)

// ArrowType returns the Arrow type used to store columns of type t.
func ArrowType(t domain.DataType) arrow.DataType {
	switch t {
	case domain.TypeNull:
		return arrow.Null
	case domain.TypeBoolean:
		return arrow.FixedWidthTypes.Boolean
	case domain.TypeInt8:
		return arrow.PrimitiveTypes.Int8
	case domain.TypeInt16:
		return arrow.PrimitiveTypes.Int16
	case domain.TypeInt32:
		return arrow.PrimitiveTypes.Int32
	case domain.TypeInt64:
		return arrow.PrimitiveTypes.Int64
	case domain.TypeUInt8:
		return arrow.PrimitiveTypes.Uint8
	case domain.TypeUInt16:
		return arrow.PrimitiveTypes.Uint16
	case domain.TypeUInt32:
		return arrow.PrimitiveTypes.Uint32
	case domain.TypeUInt64:
		return arrow.PrimitiveTypes.Uint64
	case domain.TypeFloat32:
		return arrow.PrimitiveTypes.Float32
	case domain.TypeFloat64:
		return arrow.PrimitiveTypes.Float64
	case domain.TypeLargeUtf8:
		return arrow.BinaryTypes.LargeString
	case domain.TypeBinary:
		return arrow.BinaryTypes.Binary
	case domain.TypeDate32:
		return arrow.FixedWidthTypes.Date32
	case domain.TypeDate64:
		return arrow.FixedWidthTypes.Date64
	case domain.TypeTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	case domain.TypeTime64:
		return arrow.FixedWidthTypes.Time64us
	case domain.TypeDecimal128:
		return &arrow.Decimal128Type{Precision: 38, Scale: 9}
	case domain.TypeList:
		return arrow.ListOf(arrow.BinaryTypes.String)
	case domain.TypeStruct:
		return arrow.StructOf()
	default:
		return arrow.BinaryTypes.String
	}
}

// FromArrowType maps an Arrow type back to a catalogue data type.
// Types without a catalogue equivalent map to Utf8.
func FromArrowType(dt arrow.DataType) domain.DataType {
	switch dt.ID() {
	case arrow.NULL:
		return domain.TypeNull
	case arrow.BOOL:
		return domain.TypeBoolean
	case arrow.INT8:
		return domain.TypeInt8
	case arrow.INT16:
		return domain.TypeInt16
	case arrow.INT32:
		return domain.TypeInt32
	case arrow.INT64:
		return domain.TypeInt64
	case arrow.UINT8:
		return domain.TypeUInt8
	case arrow.UINT16:
		return domain.TypeUInt16
	case arrow.UINT32:
		return domain.TypeUInt32
	case arrow.UINT64:
		return domain.TypeUInt64
	case arrow.FLOAT32:
		return domain.TypeFloat32
	case arrow.FLOAT64:
		return domain.TypeFloat64
	case arrow.LARGE_STRING:
		return domain.TypeLargeUtf8
	case arrow.BINARY, arrow.LARGE_BINARY:
		return domain.TypeBinary
	case arrow.DATE32:
		return domain.TypeDate32
	case arrow.DATE64:
		return domain.TypeDate64
	case arrow.TIMESTAMP:
		return domain.TypeTimestamp
	case arrow.TIME64:
		return domain.TypeTime64
	case arrow.DECIMAL128:
		return domain.TypeDecimal128
	case arrow.LIST, arrow.LARGE_LIST:
		return domain.TypeList
	case arrow.STRUCT:
		return domain.TypeStruct
	default:
		return domain.TypeUtf8
	}
}

// ToArrow builds the Arrow schema for s.
func ToArrow(s domain.Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(s))
	for i, c := range s {
		fields[i] = arrow.Field{Name: c.Name, Type: ArrowType(c.DataType), Nullable: c.Nullable}
	}
	return arrow.NewSchema(fields, nil)
}

// FromArrow builds a catalogue schema from an Arrow schema. Unique and
// references are not representable in Arrow and are left unset.
func FromArrow(as *arrow.Schema) domain.Schema {
	out := make(domain.Schema, 0, as.NumFields())
	for _, f := range as.Fields() {
		out = append(out, domain.Column{
			Name:     f.Name,
			DataType: FromArrowType(f.Type),
			Nullable: f.Nullable,
		})
	}
	return out
}
