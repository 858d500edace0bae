package value

// Object is the ordered map keyed by interned string backing the `object`
// Value kind (spec §3.3: "object (ordered map keyed by interned string)").
// Insertion order is preserved so iteration and Debug formatting are
// deterministic, which the assembler relies on when it interns an object
// pattern's key-set into static_object_keys (spec §4.5).
type Object struct {
	keys   []string
	index  map[string]int
	values []Value
}

func NewObject() *Object {
	return &Object{index: make(map[string]int)}
}

func (o *Object) Get(key string) (Value, bool) {
	i, ok := o.index[key]
	if !ok {
		return Value{}, false
	}
	return o.values[i], true
}

func (o *Object) Set(key string, v Value) {
	if i, ok := o.index[key]; ok {
		o.values[i] = v
		return
	}
	o.index[key] = len(o.keys)
	o.keys = append(o.keys, key)
	o.values = append(o.values, v)
}

func (o *Object) Keys() []string {
	return o.keys
}

func (o *Object) Len() int {
	return len(o.keys)
}

// ExactKeys reports whether the object's key-set is exactly the given set,
// used by MatchObject when exact=true (spec §4.5/§4.7).
func (o *Object) ExactKeys(want []string) bool {
	if len(want) != len(o.keys) {
		return false
	}
	for _, k := range want {
		if _, ok := o.index[k]; !ok {
			return false
		}
	}
	return true
}

// HasKeys reports whether the object contains every key in want, used by
// MatchObject when exact=false.
func (o *Object) HasKeys(want []string) bool {
	for _, k := range want {
		if _, ok := o.index[k]; !ok {
			return false
		}
	}
	return true
}

func (o *Object) Clone() *Object {
	clone := &Object{
		keys:   append([]string(nil), o.keys...),
		values: append([]Value(nil), o.values...),
		index:  make(map[string]int, len(o.index)),
	}
	for k, i := range o.index {
		clone.index[k] = i
	}
	return clone
}
