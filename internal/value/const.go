package value

import "fmt"

// ConstValue is the Value subset usable for const evaluation and function
// re-exports (spec §3.7): no futures, no Any, no closures — only
// clone-and-send-safe forms. It is a separate type rather than a validity
// flag on Value so that the Unit's constants map can never accidentally
// hold a non-const-safe payload.
type ConstValue struct {
	kind   Kind
	num    uint64
	str    string
	bytes  []byte
	items  []ConstValue
	fields map[string]ConstValue
	object *Object
	rtti   *Rtti
	vrtti  *VariantRtti
	option *ConstOption
	result *ConstResult
}

type ConstOption struct {
	Present bool
	Inner   ConstValue
}

type ConstResult struct {
	Ok    bool
	Inner ConstValue
}

func (c ConstValue) Kind() Kind { return c.kind }

func ConstUnit() ConstValue           { return ConstValue{kind: KindUnit} }
func ConstBool(b bool) ConstValue     { v := Bool(b); return ConstValue{kind: KindBool, num: v.num} }
func ConstInteger(i int64) ConstValue { return ConstValue{kind: KindInteger, num: uint64(i)} }
func ConstFloat(f float64) ConstValue { v := Float(f); return ConstValue{kind: KindFloat, num: v.num} }
func ConstString(s string) ConstValue { return ConstValue{kind: KindString, str: s} }
func ConstBytes(b []byte) ConstValue  { return ConstValue{kind: KindBytes, bytes: b} }
func ConstVec(items []ConstValue) ConstValue {
	return ConstValue{kind: KindVec, items: items}
}
func ConstTuple(items []ConstValue) ConstValue {
	return ConstValue{kind: KindTuple, items: items}
}
func ConstObject(fields map[string]ConstValue) ConstValue {
	return ConstValue{kind: KindObject, fields: fields}
}
func ConstSome(inner ConstValue) ConstValue {
	return ConstValue{kind: KindOption, option: &ConstOption{Present: true, Inner: inner}}
}
func ConstNone() ConstValue {
	return ConstValue{kind: KindOption, option: &ConstOption{}}
}
func ConstOk(inner ConstValue) ConstValue {
	return ConstValue{kind: KindResult, result: &ConstResult{Ok: true, Inner: inner}}
}
func ConstErr(inner ConstValue) ConstValue {
	return ConstValue{kind: KindResult, result: &ConstResult{Inner: inner}}
}
func ConstUnitStruct(rtti *Rtti) ConstValue {
	return ConstValue{kind: KindStruct, rtti: rtti}
}
func ConstTupleStruct(rtti *Rtti, items []ConstValue) ConstValue {
	return ConstValue{kind: KindTupleStruct, rtti: rtti, items: items}
}
func ConstVariant(rtti *VariantRtti, items []ConstValue) ConstValue {
	return ConstValue{kind: KindVariant, vrtti: rtti, items: items}
}

func (c ConstValue) AsInteger() (int64, bool) {
	if c.kind != KindInteger {
		return 0, false
	}
	return int64(c.num), true
}

func (c ConstValue) AsString() (string, bool) {
	if c.kind != KindString {
		return "", false
	}
	return c.str, true
}

func (c ConstValue) AsItems() ([]ConstValue, bool) {
	if c.kind != KindVec && c.kind != KindTuple {
		return nil, false
	}
	return c.items, true
}

// ToValue lifts a ConstValue into a full runtime Value, used whenever a
// `const` item is read at runtime.
func (c ConstValue) ToValue() Value {
	switch c.kind {
	case KindUnit:
		return Unit()
	case KindBool:
		return Value{kind: KindBool, num: c.num}
	case KindInteger:
		return Value{kind: KindInteger, num: c.num}
	case KindFloat:
		return Value{kind: KindFloat, num: c.num}
	case KindString:
		return String(c.str)
	case KindBytes:
		return Bytes(c.bytes)
	case KindVec:
		vs := make([]Value, len(c.items))
		for i, it := range c.items {
			vs[i] = it.ToValue()
		}
		return Vec(vs)
	case KindTuple:
		vs := make([]Value, len(c.items))
		for i, it := range c.items {
			vs[i] = it.ToValue()
		}
		return Tuple(vs)
	case KindObject:
		o := NewObject()
		for k, v := range c.fields {
			o.Set(k, v.ToValue())
		}
		return FromObject(o)
	case KindOption:
		if c.option.Present {
			return Some(c.option.Inner.ToValue())
		}
		return None()
	case KindResult:
		if c.result.Ok {
			return Ok(c.result.Inner.ToValue())
		}
		return Err(c.result.Inner.ToValue())
	case KindStruct:
		return Struct(c.rtti, nil)
	case KindTupleStruct:
		vs := make([]Value, len(c.items))
		for i, it := range c.items {
			vs[i] = it.ToValue()
		}
		return TupleStruct(c.rtti, vs)
	case KindVariant:
		vs := make([]Value, len(c.items))
		for i, it := range c.items {
			vs[i] = it.ToValue()
		}
		return Variant(c.vrtti, vs)
	default:
		return Unit()
	}
}

func (c ConstValue) String() string {
	return fmt.Sprintf("<const %s>", c.kind)
}
