// Package simulate replays a contribution plan over a daily close series.
//
// A run walks the series once. On each trading day it first checks whether a
// scheduled contribution is due, then asks the configured Policy whether
// accumulated cash should be deployed, then remembers the close for the next
// day. After the walk the ledger is finalised against the last close and the
// output fields are rounded. Nothing is shared between runs.
package simulate
