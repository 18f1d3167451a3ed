package profile

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindOther Kind = iota
	KindInt32
	KindUint32
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "i32"
	case KindUint32:
		return "u32"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "other"
	}
}

// Value is a device parameter value. The zero Value is KindOther.
type Value struct {
	kind Kind
	i    int32
	u    uint32
	f    float32
	b    bool
}

func Int32(v int32) Value     { return Value{kind: KindInt32, i: v} }
func Uint32(v uint32) Value   { return Value{kind: KindUint32, u: v} }
func Float(v float32) Value   { return Value{kind: KindFloat, f: v} }
func Bool(v bool) Value       { return Value{kind: KindBool, b: v} }
func Other() Value            { return Value{} }
func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsOther() bool { return v.kind == KindOther }

// AsInt32 returns the signed payload.
func (v Value) AsInt32() (int32, bool) { return v.i, v.kind == KindInt32 }

// AsUint32 returns the unsigned payload.
func (v Value) AsUint32() (uint32, bool) { return v.u, v.kind == KindUint32 }

// AsFloat returns the float payload.
func (v Value) AsFloat() (float32, bool) { return v.f, v.kind == KindFloat }

// AsBool returns the bool payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// Equal reports whether both values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt32:
		return v.i == o.i
	case KindUint32:
		return v.u == o.u
	case KindFloat:
		return v.f == o.f || (math.IsNaN(float64(v.f)) && math.IsNaN(float64(o.f)))
	case KindBool:
		return v.b == o.b
	default:
		return true
	}
}

// Interface returns the payload as a plain Go value, nil for KindOther.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt32:
		return v.i
	case KindUint32:
		return v.u
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindOther:
		return "other"
	default:
		return fmt.Sprintf("%s(%v)", v.kind, v.Interface())
	}
}

// MarshalJSON writes the bare payload. Non-finite floats and KindOther become null.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindFloat && !v.Persistable() {
		return []byte("null"), nil
	}
	return json.Marshal(v.Interface())
}

// Persistable reports whether the value survives a save: integers, bools and finite floats.
func (v Value) Persistable() bool {
	switch v.kind {
	case KindInt32, KindUint32, KindBool:
		return true
	case KindFloat:
		f := float64(v.f)
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return false
	}
}

// ClassifyInteger tags an integer read from an external record. Integers below the
// signed 32-bit range or above the unsigned 32-bit range are rejected.
func ClassifyInteger(n int64) (Value, bool) {
	switch {
	case n < math.MinInt32:
		return Value{}, false
	case n <= math.MaxInt32:
		return Int32(int32(n)), true
	case n <= math.MaxUint32:
		return Uint32(uint32(n)), true
	default:
		return Value{}, false
	}
}

// ClassifyNumber tags a JSON number literal. Literals that parse as a 64-bit integer go
// through ClassifyInteger; everything else that parses becomes a float.
func ClassifyNumber(literal string) (Value, bool) {
	if n, err := strconv.ParseInt(literal, 10, 64); err == nil {
		return ClassifyInteger(n)
	}
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil && !isRangeError(err) {
		return Value{}, false
	}
	return Float(float32(f)), true
}

func isRangeError(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}
