package shared

import (
	"fmt"

	"github.com/google/uuid"
)

// ParseID parses a resource id. Malformed ids cannot exist, so they are
// reported as not found rather than as a validation failure.
func ParseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed id", ErrNotFound)
	}
	return parsed, nil
}
