// Package meshkv implements a distributed in-memory key-value store: one
// authoritative coordinator and many caching nodes. See the coordinator and
// node subpackages for the RPC surface and cache-coherence protocol, and the
// frame subpackage for the wire codec that streams oversize values.
package meshkv
