package core

// Value represents a script-level payload crossing the sandbox boundary.
// Concrete value types implement the unexported isValue marker enabling a
// closed set: null, boolean, integer, float, text, sequence and map. The
// core never inspects payload structure beyond passing it through.
type Value interface{ isValue() }

// NullValue is the absent / nil payload.
type NullValue struct{}

// isValue implements the Value interface for NullValue.
func (NullValue) isValue() {}

// BoolValue is a boolean payload.
type BoolValue struct {
	Bool bool
}

// isValue implements the Value interface for BoolValue.
func (BoolValue) isValue() {}

// IntValue is a signed integer payload.
type IntValue struct {
	Int int64
}

// isValue implements the Value interface for IntValue.
func (IntValue) isValue() {}

// FloatValue is a floating point payload.
type FloatValue struct {
	Float float64
}

// isValue implements the Value interface for FloatValue.
func (FloatValue) isValue() {}

// TextValue is a plain UTF-8 text payload.
type TextValue struct {
	Text string
}

// isValue implements the Value interface for TextValue.
func (TextValue) isValue() {}

// ListValue is an ordered sequence of values.
type ListValue struct {
	Items []Value
}

// isValue implements the Value interface for ListValue.
func (ListValue) isValue() {}

// MapValue is a key/value collection; key order carries no meaning.
type MapValue struct {
	Entries map[string]Value
}

// isValue implements the Value interface for MapValue.
func (MapValue) isValue() {}

// Null returns the null payload.
func Null() Value { return NullValue{} }

// Bool wraps a bool as a Value.
func Bool(b bool) Value { return BoolValue{Bool: b} }

// Int wraps an int64 as a Value.
func Int(i int64) Value { return IntValue{Int: i} }

// Float wraps a float64 as a Value.
func Float(f float64) Value { return FloatValue{Float: f} }

// Text wraps a string as a Value.
func Text(s string) Value { return TextValue{Text: s} }

// List wraps a sequence of values as a Value.
func List(items ...Value) Value { return ListValue{Items: items} }

// Map wraps a key/value collection as a Value.
func Map(entries map[string]Value) Value { return MapValue{Entries: entries} }

// AsText extracts the string from a TextValue.
func AsText(v Value) (string, bool) {
	t, ok := v.(TextValue)
	return t.Text, ok
}

// AsBool extracts the bool from a BoolValue.
func AsBool(v Value) (bool, bool) {
	b, ok := v.(BoolValue)
	return b.Bool, ok
}

// ValueEqual reports deep equality of two values. Lists compare element by
// element in order; maps compare by key set and per-key value.
func ValueEqual(a, b Value) bool {
	switch av := a.(type) {
	case NullValue:
		_, ok := b.(NullValue)
		return ok
	case BoolValue:
		bv, ok := b.(BoolValue)
		return ok && av.Bool == bv.Bool
	case IntValue:
		bv, ok := b.(IntValue)
		return ok && av.Int == bv.Int
	case FloatValue:
		bv, ok := b.(FloatValue)
		return ok && av.Float == bv.Float
	case TextValue:
		bv, ok := b.(TextValue)
		return ok && av.Text == bv.Text
	case ListValue:
		bv, ok := b.(ListValue)
		if !ok || len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !ValueEqual(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case MapValue:
		bv, ok := b.(MapValue)
		if !ok || len(av.Entries) != len(bv.Entries) {
			return false
		}
		for k, v := range av.Entries {
			other, present := bv.Entries[k]
			if !present || !ValueEqual(v, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
