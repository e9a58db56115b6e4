// Package access is the single authorization entry point used by services.
// It composes the capability model, recipient visibility and the lifecycle
// state machine into one decision.
package access

import (
	"errors"
	"time"

	"github.com/rukunwarga/rukun/internal/lifecycle"
	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
	"github.com/rukunwarga/rukun/internal/visibility"
)

// TransitionRequest describes a lifecycle mutation.
type TransitionRequest struct {
	Kind      lifecycle.Kind
	Current   lifecycle.State
	Requested lifecycle.State
}

// Resource carries the context of the action being authorized. A zero
// Resource means a capability-only check.
type Resource struct {
	Broadcast  *visibility.Broadcast
	Transition *TransitionRequest
}

// Recorder observes decisions, typically for metrics.
type Recorder interface {
	ObserveDecision(capability rbac.Capability, d Decision)
}

// Facade authorizes actions. It is safe for concurrent use.
type Facade struct {
	caps     rbac.Checker
	resolver visibility.Resolver
	machine  *lifecycle.Machine
	recorder Recorder
	now      func() time.Time
}

// Option configures a Facade.
type Option func(*Facade)

// WithRecorder attaches a decision recorder.
func WithRecorder(r Recorder) Option {
	return func(f *Facade) { f.recorder = r }
}

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(f *Facade) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFacade builds a Facade over the given capability model and state machine.
func NewFacade(caps rbac.Checker, machine *lifecycle.Machine, opts ...Option) *Facade {
	if machine == nil {
		machine = lifecycle.New(caps)
	}
	f := &Facade{
		caps:     caps,
		resolver: visibility.NewResolver(caps),
		machine:  machine,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Machine exposes the underlying state machine.
func (f *Facade) Machine() *lifecycle.Machine {
	return f.machine
}

// Resolver exposes the visibility resolver for list filtering.
func (f *Facade) Resolver() visibility.Resolver {
	return f.resolver
}

// Authorize decides whether p may perform capability on res.
//
// Transition resources are decided by the state machine and the capability
// argument is ignored, since the edge names its own capability. Broadcast
// resources require the capability (when non-empty) and visibility; any deny
// on a broadcast is Hidden.
func (f *Facade) Authorize(p rbac.Principal, capability rbac.Capability, res Resource) Decision {
	d := f.decide(p, capability, res)
	if f.recorder != nil {
		f.recorder.ObserveDecision(capability, d)
	}
	return d
}

func (f *Facade) decide(p rbac.Principal, capability rbac.Capability, res Resource) Decision {
	if !p.Authenticated() {
		return Decision{Effect: EffectUnauthenticated, Reason: "principal required"}
	}
	if res.Transition != nil {
		return f.transition(p, *res.Transition)
	}
	if res.Broadcast != nil {
		if capability != "" && !f.has(p, capability) {
			return Decision{Effect: EffectDeny, Reason: "capability " + string(capability) + " missing", Hidden: true}
		}
		if !f.resolver.IsVisible(p, *res.Broadcast, f.now()) {
			return Decision{Effect: EffectDeny, Reason: "not visible to principal", Hidden: true}
		}
		return Decision{Effect: EffectAllow}
	}
	if capability == "" {
		return Decision{Effect: EffectInvalid, Reason: "capability required"}
	}
	if !f.has(p, capability) {
		return Decision{Effect: EffectDeny, Reason: "role " + string(p.Role) + " lacks " + string(capability)}
	}
	return Decision{Effect: EffectAllow}
}

func (f *Facade) transition(p rbac.Principal, req TransitionRequest) Decision {
	result, err := f.machine.Transition(req.Kind, req.Current, req.Requested, p)
	switch {
	case err == nil:
		return Decision{Effect: EffectAllow, Transition: &result}
	case errors.Is(err, shared.ErrConflict):
		return Decision{Effect: EffectConflict, Reason: err.Error()}
	case errors.Is(err, shared.ErrValidation):
		return Decision{Effect: EffectInvalid, Reason: err.Error()}
	default:
		return Decision{Effect: EffectDeny, Reason: err.Error()}
	}
}

func (f *Facade) has(p rbac.Principal, capability rbac.Capability) bool {
	return f.caps != nil && f.caps.Has(p.Role, capability)
}
