// Package idgen produces query identifiers for styleq.
//
// The engine accepts a Generator so the ID strategy is a startup-time
// decision: results are demultiplexed by ID, so the only hard requirement
// is uniqueness within the process lifetime.
package idgen

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator func() string

// Query is the default generator for style query IDs: "q_" over an
// RFC 9562 UUID v7. Time-sortable, which keeps batch output lines
// greppable in order.
var Query Generator = func() string {
	return "q_" + uuid.Must(uuid.NewV7()).String()
}
