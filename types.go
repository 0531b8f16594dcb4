package meshkv

// Key is an immutable byte string identifying a value in the store, a
// named queue, or a node. Equality is byte-wise; the system imposes no
// further structure on it.
type Key = []byte

// Value is an immutable byte string stored under a Key, including values
// longer than a single frame (see package frame).
type Value = []byte
