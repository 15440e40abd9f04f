// README: Opaque identifiers shared across modules.
package types

import (
	"strings"

	"github.com/google/uuid"
)

// ID is an opaque, stable identifier such as a session key.
type ID string

// NewID returns a random 32-char hex identifier.
func NewID() ID {
	return ID(strings.ReplaceAll(uuid.NewString(), "-", ""))
}
