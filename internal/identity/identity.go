// Package identity generates the two identifiers a session carries: the opaque
// session id persisted on the client, and the pseudo-user id derived from
// client-reported environment attributes.
package identity

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/google/uuid"
)

// NewSessionID mints an opaque session identifier. The caller persists it
// client-side (cookie) so one browser keeps one id.
func NewSessionID() string {
	return uuid.NewString()
}

// PseudoUserID hashes client-reported attributes into a coarse uniqueness
// marker. FNV-1a on self-reported strings: deliberately weak, collisions and
// spoofing are acceptable since the id only feeds daily unique-visitor counts.
func PseudoUserID(attrs ...string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.Join(attrs, "|")))
	return fmt.Sprintf("u%08x", h.Sum32())
}
