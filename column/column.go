package column

import "fmt"

// Column is a named, typed, contiguous sequence of values with a
// parallel validity slice for null tracking. Columns are immutable
// once built; construct them with a Builder or one of the New*Column
// helpers.
type Column struct {
	name   string
	typ    DataType
	bools  []bool
	ints   []int64
	floats []float64
	strs   []string
	// valid[i] reports whether row i holds a value. A nil slice means
	// every row is valid.
	valid  []bool
	length int
}

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Type returns the column data type.
func (c *Column) Type() DataType { return c.typ }

// Len returns the number of rows.
func (c *Column) Len() int { return c.length }

// IsNull reports whether row i is null.
func (c *Column) IsNull(i int) bool {
	return c.valid != nil && !c.valid[i]
}

// NullCount returns the number of null rows.
func (c *Column) NullCount() int {
	if c.valid == nil {
		return 0
	}
	n := 0
	for _, v := range c.valid {
		if !v {
			n++
		}
	}
	return n
}

// Bool returns the value at row i. The caller must check IsNull first;
// the value at a null row is unspecified.
func (c *Column) Bool(i int) bool { return c.bools[i] }

// Int64 returns the value at row i. See Bool for null handling.
func (c *Column) Int64(i int) int64 { return c.ints[i] }

// Float64 returns the value at row i. See Bool for null handling.
func (c *Column) Float64(i int) float64 { return c.floats[i] }

// String returns the value at row i. See Bool for null handling.
func (c *Column) String(i int) string { return c.strs[i] }

// Value returns the value at row i as an interface, or nil for null.
func (c *Column) Value(i int) interface{} {
	if c.IsNull(i) {
		return nil
	}
	switch c.typ {
	case Bool:
		return c.bools[i]
	case Int64:
		return c.ints[i]
	case Float64:
		return c.floats[i]
	case String:
		return c.strs[i]
	default:
		return nil
	}
}

// Rename returns a column sharing this column's storage under a new
// name.
func (c *Column) Rename(name string) *Column {
	out := *c
	out.name = name
	return &out
}

// Field returns the schema field describing this column.
func (c *Column) Field() Field {
	return Field{Name: c.name, Type: c.typ}
}

// Slice returns a column viewing rows [start, end) of this column.
// The underlying storage is shared.
func (c *Column) Slice(start, end int) *Column {
	out := &Column{name: c.name, typ: c.typ, length: end - start}
	switch c.typ {
	case Bool:
		out.bools = c.bools[start:end]
	case Int64:
		out.ints = c.ints[start:end]
	case Float64:
		out.floats = c.floats[start:end]
	case String:
		out.strs = c.strs[start:end]
	}
	if c.valid != nil {
		out.valid = c.valid[start:end]
	}
	return out
}

// Builder accumulates values for a column. Append methods must match
// the declared type; Finish seals the column.
type Builder struct {
	col      Column
	hasNulls bool
}

// NewBuilder creates a builder for a column of the given name and
// type, with room for capacity rows.
func NewBuilder(name string, typ DataType, capacity int) *Builder {
	b := &Builder{col: Column{name: name, typ: typ}}
	switch typ {
	case Bool:
		b.col.bools = make([]bool, 0, capacity)
	case Int64:
		b.col.ints = make([]int64, 0, capacity)
	case Float64:
		b.col.floats = make([]float64, 0, capacity)
	case String:
		b.col.strs = make([]string, 0, capacity)
	}
	b.col.valid = make([]bool, 0, capacity)
	return b
}

// Len returns the number of rows appended so far.
func (b *Builder) Len() int { return b.col.length }

// AppendBool appends a boolean value.
func (b *Builder) AppendBool(v bool) {
	b.col.bools = append(b.col.bools, v)
	b.col.valid = append(b.col.valid, true)
	b.col.length++
}

// AppendInt64 appends an integer value.
func (b *Builder) AppendInt64(v int64) {
	b.col.ints = append(b.col.ints, v)
	b.col.valid = append(b.col.valid, true)
	b.col.length++
}

// AppendFloat64 appends a floating-point value.
func (b *Builder) AppendFloat64(v float64) {
	b.col.floats = append(b.col.floats, v)
	b.col.valid = append(b.col.valid, true)
	b.col.length++
}

// AppendString appends a string value.
func (b *Builder) AppendString(v string) {
	b.col.strs = append(b.col.strs, v)
	b.col.valid = append(b.col.valid, true)
	b.col.length++
}

// AppendNull appends a null row.
func (b *Builder) AppendNull() {
	switch b.col.typ {
	case Bool:
		b.col.bools = append(b.col.bools, false)
	case Int64:
		b.col.ints = append(b.col.ints, 0)
	case Float64:
		b.col.floats = append(b.col.floats, 0)
	case String:
		b.col.strs = append(b.col.strs, "")
	}
	b.col.valid = append(b.col.valid, false)
	b.col.length++
	b.hasNulls = true
}

// AppendValue appends an interface value, dispatching on the builder's
// declared type. nil appends a null. Integer values are accepted for
// Float64 columns and widened.
func (b *Builder) AppendValue(v interface{}) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch b.col.typ {
	case Bool:
		val, ok := v.(bool)
		if !ok {
			return fmt.Errorf("column %q: expected bool, got %T", b.col.name, v)
		}
		b.AppendBool(val)
	case Int64:
		switch val := v.(type) {
		case int64:
			b.AppendInt64(val)
		case int32:
			b.AppendInt64(int64(val))
		case int:
			b.AppendInt64(int64(val))
		default:
			return fmt.Errorf("column %q: expected int64, got %T", b.col.name, v)
		}
	case Float64:
		switch val := v.(type) {
		case float64:
			b.AppendFloat64(val)
		case float32:
			b.AppendFloat64(float64(val))
		case int64:
			b.AppendFloat64(float64(val))
		case int:
			b.AppendFloat64(float64(val))
		default:
			return fmt.Errorf("column %q: expected float64, got %T", b.col.name, v)
		}
	case String:
		switch val := v.(type) {
		case string:
			b.AppendString(val)
		case []byte:
			b.AppendString(string(val))
		default:
			return fmt.Errorf("column %q: expected string, got %T", b.col.name, v)
		}
	default:
		return fmt.Errorf("column %q: unsupported type %v", b.col.name, b.col.typ)
	}
	return nil
}

// Finish seals and returns the column. The builder must not be used
// afterwards.
func (b *Builder) Finish() *Column {
	col := b.col
	if !b.hasNulls {
		// Drop the validity slice when every row is valid.
		col.valid = nil
	}
	b.col = Column{}
	return &col
}

// NewBoolColumn builds a bool column from values and an optional
// validity slice (nil means all valid).
func NewBoolColumn(name string, values []bool, valid []bool) *Column {
	return &Column{name: name, typ: Bool, bools: values, valid: valid, length: len(values)}
}

// NewInt64Column builds an int64 column from values and an optional
// validity slice (nil means all valid).
func NewInt64Column(name string, values []int64, valid []bool) *Column {
	return &Column{name: name, typ: Int64, ints: values, valid: valid, length: len(values)}
}

// NewFloat64Column builds a float64 column from values and an optional
// validity slice (nil means all valid).
func NewFloat64Column(name string, values []float64, valid []bool) *Column {
	return &Column{name: name, typ: Float64, floats: values, valid: valid, length: len(values)}
}

// NewStringColumn builds a string column from values and an optional
// validity slice (nil means all valid).
func NewStringColumn(name string, values []string, valid []bool) *Column {
	return &Column{name: name, typ: String, strs: values, valid: valid, length: len(values)}
}
