// Package ids generates the opaque string identifiers used throughout the
// runtime for threads, tasks, memory steps, and artifacts: UUIDv4 for
// freshly minted identifiers, plus a short non-cryptographic hash used to
// shorten identifiers when building artifact namespace paths.
package ids

import (
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
)

// New returns a fresh UUIDv4 string. Used for Thread, Task, MemoryStep, and
// Artifact identifiers.
func New() string {
	return uuid.NewString()
}

// ShortHex returns an 8-character stable hash of id, used to build the
// artifact namespace path `{thread_8hex}/{task_8hex}/content/...`. The hash
// is intentionally non-cryptographic (FNV-1a): collisions within a thread
// are theoretically possible, and a cross-thread dedup scheme would need a
// cryptographic digest instead (see DESIGN.md).
func ShortHex(id string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return fmt.Sprintf("%08x", h.Sum32())
}
