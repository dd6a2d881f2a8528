package sqlite

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/skilldock/skilldock/core"
)

// wireValue is the CBOR envelope for the closed core.Value variant. Kind
// discriminates; exactly one payload field is meaningful per kind.
type wireValue struct {
	Kind  string               `cbor:"k"`
	Bool  bool                 `cbor:"b,omitempty"`
	Int   int64                `cbor:"i,omitempty"`
	Float float64              `cbor:"f,omitempty"`
	Text  string               `cbor:"t,omitempty"`
	List  []wireValue          `cbor:"l,omitempty"`
	Map   map[string]wireValue `cbor:"m,omitempty"`
}

const (
	kindNull  = "null"
	kindBool  = "bool"
	kindInt   = "int"
	kindFloat = "float"
	kindText  = "text"
	kindList  = "list"
	kindMap   = "map"
)

func encodeValue(v core.Value) ([]byte, error) {
	wv, err := toWire(v)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(wv)
}

func decodeValue(data []byte) (core.Value, error) {
	var wv wireValue
	if err := cbor.Unmarshal(data, &wv); err != nil {
		return nil, fmt.Errorf("decode context value: %w", err)
	}
	return fromWire(wv)
}

func toWire(v core.Value) (wireValue, error) {
	switch tv := v.(type) {
	case nil, core.NullValue:
		return wireValue{Kind: kindNull}, nil
	case core.BoolValue:
		return wireValue{Kind: kindBool, Bool: tv.Bool}, nil
	case core.IntValue:
		return wireValue{Kind: kindInt, Int: tv.Int}, nil
	case core.FloatValue:
		return wireValue{Kind: kindFloat, Float: tv.Float}, nil
	case core.TextValue:
		return wireValue{Kind: kindText, Text: tv.Text}, nil
	case core.ListValue:
		items := make([]wireValue, len(tv.Items))
		for i, item := range tv.Items {
			w, err := toWire(item)
			if err != nil {
				return wireValue{}, err
			}
			items[i] = w
		}
		return wireValue{Kind: kindList, List: items}, nil
	case core.MapValue:
		entries := make(map[string]wireValue, len(tv.Entries))
		for k, item := range tv.Entries {
			w, err := toWire(item)
			if err != nil {
				return wireValue{}, err
			}
			entries[k] = w
		}
		return wireValue{Kind: kindMap, Map: entries}, nil
	default:
		return wireValue{}, fmt.Errorf("unsupported value type %T", v)
	}
}

func fromWire(wv wireValue) (core.Value, error) {
	switch wv.Kind {
	case kindNull:
		return core.NullValue{}, nil
	case kindBool:
		return core.BoolValue{Bool: wv.Bool}, nil
	case kindInt:
		return core.IntValue{Int: wv.Int}, nil
	case kindFloat:
		return core.FloatValue{Float: wv.Float}, nil
	case kindText:
		return core.TextValue{Text: wv.Text}, nil
	case kindList:
		items := make([]core.Value, len(wv.List))
		for i, w := range wv.List {
			v, err := fromWire(w)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return core.ListValue{Items: items}, nil
	case kindMap:
		entries := make(map[string]core.Value, len(wv.Map))
		for k, w := range wv.Map {
			v, err := fromWire(w)
			if err != nil {
				return nil, err
			}
			entries[k] = v
		}
		return core.MapValue{Entries: entries}, nil
	default:
		return nil, fmt.Errorf("unknown value kind %q", wv.Kind)
	}
}
