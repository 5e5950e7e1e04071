package corrid

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// counter is a process-lifetime monotonic sequence mixed into every minted
// ID so correlation IDs sort roughly by emission order even though the
// random suffix (from uuid) is what actually guarantees uniqueness.
var counter uint64

// New mints an opaque, unique-per-process correlation ID: a monotonic
// counter plus a random suffix, per spec §4.1.
func New() string {
	seq := atomic.AddUint64(&counter, 1)
	return fmt.Sprintf("corr-%d-%s", seq, uuid.NewString())
}
