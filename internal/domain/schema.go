package domain

import "fmt"

// DataType names the logical type of a column.
type DataType string

// Supported column data types.
const (
	TypeNull       DataType = "Null"
	TypeBoolean    DataType = "Boolean"
	TypeInt8       DataType = "Int8"
	TypeInt16      DataType = "Int16"
	TypeInt32      DataType = "Int32"
	TypeInt64      DataType = "Int64"
	TypeUInt8      DataType = "UInt8"
	TypeUInt16     DataType = "UInt16"
	TypeUInt32     DataType = "UInt32"
	TypeUInt64     DataType = "UInt64"
	TypeFloat32    DataType = "Float32"
	TypeFloat64    DataType = "Float64"
	TypeUtf8       DataType = "Utf8"
	TypeLargeUtf8  DataType = "LargeUtf8"
	TypeBinary     DataType = "Binary"
	TypeDate32     DataType = "Date32"
	TypeDate64     DataType = "Date64"
	TypeTimestamp  DataType = "Timestamp"
	TypeTime64     DataType = "Time64"
	TypeDecimal128 DataType = "Decimal128"
	TypeList       DataType = "List"
	TypeStruct     DataType = "Struct"
)

// DataTypes lists every supported data type in a stable order.
// The order is part of the schema codec's enum encoding; append only.
var DataTypes = []DataType{
	TypeNull, TypeBoolean,
	TypeInt8, TypeInt16, TypeInt32, TypeInt64,
	TypeUInt8, TypeUInt16, TypeUInt32, TypeUInt64,
	TypeFloat32, TypeFloat64,
	TypeUtf8, TypeLargeUtf8, TypeBinary,
	TypeDate32, TypeDate64, TypeTimestamp, TypeTime64,
	TypeDecimal128, TypeList, TypeStruct,
}

// Valid reports whether t is a known data type.
func (t DataType) Valid() bool {
	for _, known := range DataTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Column describes a single table column.
type Column struct {
	// Name is the column name. Never empty once cleaned.
	Name string `json:"name" yaml:"name"`
	// DataType is the logical column type.
	DataType DataType `json:"datatype" yaml:"datatype"`
	// Nullable reports whether the column accepts nulls. Not legal for primary keys.
	Nullable bool `json:"nullable" yaml:"nullable"`
	// Unique reports whether values must be unique (ignoring nulls). Requires an index.
	Unique bool `json:"unique" yaml:"unique"`
	// References names a foreign table whose primary key this column points at.
	// Requires an index.
	References *string `json:"references,omitempty" yaml:"references,omitempty"`
}

// Equal reports structural equality.
func (c Column) Equal(o Column) bool {
	if c.Name != o.Name || c.DataType != o.DataType || c.Nullable != o.Nullable || c.Unique != o.Unique {
		return false
	}
	if (c.References == nil) != (o.References == nil) {
		return false
	}
	return c.References == nil || *c.References == *o.References
}

// NeedsIndex reports whether the column requires an index.
func (c Column) NeedsIndex() bool {
	return c.Unique || c.References != nil
}

// Validate checks the column invariants.
func (c Column) Validate() error {
	if c.Name == "" {
		return ErrValidation("column name must not be empty")
	}
	if !c.DataType.Valid() {
		return ErrValidation("column %q: unknown data type %q", c.Name, c.DataType)
	}
	if c.Unique && c.Nullable {
		return ErrValidation("column %q: unique column must not be nullable", c.Name)
	}
	if c.References != nil && *c.References == "" {
		return ErrValidation("column %q: references must name a table", c.Name)
	}
	return nil
}

// Schema is an ordered list of columns.
type Schema []Column

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Equal reports structural equality of two schemas.
func (s Schema) Equal(o Schema) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if !s[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Validate checks every column and that no two columns share a name.
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for i, c := range s {
		if err := c.Validate(); err != nil {
			return err
		}
		if _, dup := seen[c.Name]; dup {
			return ErrValidation("duplicate column name %q at position %d", c.Name, i)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

func (s Schema) String() string {
	return fmt.Sprintf("%v", s.Names())
}
