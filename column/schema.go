package column

import (
	"fmt"
	"strings"
)

// DataType identifies the physical type of a column.
type DataType int

const (
	Bool DataType = iota
	Int64
	Float64
	String
)

// String returns the lowercase name of the data type.
func (t DataType) String() string {
	switch t {
	case Bool:
		return "bool"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case String:
		return "string"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// IsNumeric reports whether the type supports arithmetic.
func (t DataType) IsNumeric() bool {
	return t == Int64 || t == Float64
}

// Field describes one column of a schema: a name and a data type.
type Field struct {
	Name string
	Type DataType
}

// Schema is an ordered mapping from unique column names to data types.
// It is attached to plan nodes and to every chunk an operator produces;
// a chunk must match its producing operator's declared schema exactly
// in name, order, and type.
type Schema struct {
	fields []Field
	index  map[string]int
}

// NewSchema builds a schema from an ordered field list. Field names
// must be unique.
func NewSchema(fields ...Field) (*Schema, error) {
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("field %d has an empty name", i)
		}
		if _, dup := index[f.Name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", f.Name)
		}
		index[f.Name] = i
	}
	return &Schema{fields: append([]Field(nil), fields...), index: index}, nil
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

// Field returns the field at position i.
func (s *Schema) Field(i int) Field {
	return s.fields[i]
}

// Fields returns a copy of the ordered field list.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Lookup finds a field by name, returning its position.
func (s *Schema) Lookup(name string) (Field, int, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, -1, false
	}
	return s.fields[i], i, true
}

// Names returns the ordered column names.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Equal reports whether two schemas have identical names, order, and
// types.
func (s *Schema) Equal(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	if len(s.fields) != len(other.fields) {
		return false
	}
	for i, f := range s.fields {
		if other.fields[i] != f {
			return false
		}
	}
	return true
}

// Select returns a new schema containing only the named fields, in the
// order given.
func (s *Schema) Select(names []string) (*Schema, error) {
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		f, _, ok := s.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("column %q not found", name)
		}
		fields = append(fields, f)
	}
	return NewSchema(fields...)
}

// String renders the schema as "name:type, name:type, ...".
func (s *Schema) String() string {
	var b strings.Builder
	for i, f := range s.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteString(":")
		b.WriteString(f.Type.String())
	}
	return b.String()
}
