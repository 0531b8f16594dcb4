package node

import "github.com/machinefabric/meshkv-go"

// Node-local result kinds for insert/remove (spec.md §4.3). These are not
// RPC status codes (spec.md §6) — they classify outcomes a node observes
// locally, reusing meshkv.Error's Kind/Side/Message shape because it
// already carries exactly what a caller needs: what happened and where.
const (
	KindKeyOccupied         meshkv.Kind = "key-occupied"
	KindKeyOccupiedRefreshed meshkv.Kind = "key-occupied-local-refreshed"
	KindPartialRemove       meshkv.Kind = "partial"
)
