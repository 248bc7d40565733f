// Package identifier generates the globally unique, time-ordered identifiers
// used for release requests, audit entries and other persisted records.
package identifier

import (
	"sync"

	"github.com/google/uuid"
)

var (
	mu   sync.Mutex
	last string
)

// New returns a UUIDv7 string. Within one process the returned values are
// strictly increasing, so sorting identifiers lexicographically reproduces
// creation order.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	for {
		// The random tail of a v7 UUID can regress within the same
		// sub-millisecond tick; regenerate until the value moves forward.
		s := uuid.Must(uuid.NewV7()).String()
		if s > last {
			last = s
			return s
		}
	}
}
