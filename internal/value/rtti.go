package value

import "github.com/runelang/rune/internal/item"

// Rtti is runtime type info for a user-defined struct or enum (spec §3.5):
// immutable and safe to share behind a pointer once built. Fields records
// the ordered field names for named-field types; it is empty for
// tuple-structs and unit-structs/variants.
type Rtti struct {
	Hash   item.Hash
	Item   item.Item
	Fields []string
}

// VariantRtti additionally carries the parent enum's hash, so the VM's
// Variant instruction can validate the parent/child relationship at
// construction time (recovered from original_source's unit.rs, spec §12 of
// SPEC_FULL.md).
type VariantRtti struct {
	Rtti
	EnumHash item.Hash
}

// FieldIndex returns the slot of a named field, or -1 if not present.
func (r *Rtti) FieldIndex(name string) int {
	for i, f := range r.Fields {
		if f == name {
			return i
		}
	}
	return -1
}
