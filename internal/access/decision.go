package access

import (
	"fmt"

	"github.com/rukunwarga/rukun/internal/lifecycle"
	"github.com/rukunwarga/rukun/internal/shared"
)

// Effect is the outcome class of an authorization decision.
type Effect string

const (
	EffectAllow           Effect = "allow"
	EffectDeny            Effect = "deny"
	EffectConflict        Effect = "conflict"
	EffectInvalid         Effect = "invalid"
	EffectUnauthenticated Effect = "unauthenticated"
)

// Decision is returned by Facade.Authorize.
type Decision struct {
	Effect Effect
	Reason string
	// Hidden marks a visibility deny that callers must surface as not found.
	Hidden bool
	// Transition is set when a lifecycle transition was allowed.
	Transition *lifecycle.Result
}

// Allowed reports whether the decision permits the action.
func (d Decision) Allowed() bool {
	return d.Effect == EffectAllow
}

// Err maps the decision onto the shared sentinel errors. Allow yields nil.
func (d Decision) Err() error {
	switch d.Effect {
	case EffectAllow:
		return nil
	case EffectUnauthenticated:
		return fmt.Errorf("%w: %s", shared.ErrUnauthenticated, d.Reason)
	case EffectConflict:
		return fmt.Errorf("%w: %s", shared.ErrConflict, d.Reason)
	case EffectInvalid:
		return fmt.Errorf("%w: %s", shared.ErrValidation, d.Reason)
	case EffectDeny:
		if d.Hidden {
			return shared.ErrNotFound
		}
		return fmt.Errorf("%w: %s", shared.ErrForbidden, d.Reason)
	default:
		return fmt.Errorf("%w: undefined decision", shared.ErrForbidden)
	}
}
