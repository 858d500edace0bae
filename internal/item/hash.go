// Package item implements the content-addressed Hash identifier and the
// path-like Item/ItemBuf types used throughout the compiler and VM.
package item

import (
	"encoding/binary"
	"hash/fnv"
)

// Hash is a 64-bit content-addressed identifier. Hashes are the primary key
// throughout the Unit and VM: function lookup, RTTI lookup, and static data
// interning all key off a Hash rather than a name.
type Hash uint64

// mix combines a Hash with a byte tag, used when composing hashes out of
// more than one logical piece (a base hash plus a discriminant).
func (h Hash) mix(b []byte) Hash {
	f := fnv.New64a()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(h))
	f.Write(buf[:])
	f.Write(b)
	return Hash(f.Sum64())
}

// TypeHash hashes an item path. Equal items produce equal hashes across
// runs: the hash depends only on the sequence of component bytes.
func TypeHash(it Item) Hash {
	f := fnv.New64a()
	for _, c := range it {
		f.Write(c.bytes())
	}
	return Hash(f.Sum64())
}

// Associated composes an instance-method hash from a receiver type hash and
// a method name.
func Associated(typeHash Hash, name string) Hash {
	return typeHash.mix([]byte(name))
}

// StaticBytes interns static byte data, returning a content hash stable for
// equal byte sequences.
func StaticBytes(b []byte) Hash {
	f := fnv.New64a()
	f.Write(b)
	return Hash(f.Sum64())
}

// StaticString is StaticBytes over the UTF-8 encoding of s.
func StaticString(s string) Hash {
	return StaticBytes([]byte(s))
}
