// Package lifecycle validates one-way state transitions of neighborhood resources.
package lifecycle

import (
	"fmt"
	"slices"

	"github.com/rukunwarga/rukun/internal/rbac"
	"github.com/rukunwarga/rukun/internal/shared"
)

// Definition is the static transition table of one Kind.
type Definition struct {
	Kind    Kind
	Initial State
	states  []State
	edges   map[State]map[State]rbac.Capability
}

func newDefinition(kind Kind, initial State, states ...State) *Definition {
	return &Definition{Kind: kind, Initial: initial, states: states, edges: make(map[State]map[State]rbac.Capability)}
}

func (d *Definition) allow(from, to State, capability rbac.Capability) *Definition {
	if d.edges[from] == nil {
		d.edges[from] = make(map[State]rbac.Capability)
	}
	d.edges[from][to] = capability
	return d
}

// Has reports whether s is a state of this kind.
func (d *Definition) Has(s State) bool {
	return slices.Contains(d.states, s)
}

// Terminal reports whether s has no outgoing edges.
func (d *Definition) Terminal(s State) bool {
	return len(d.edges[s]) == 0
}

// Capability returns the capability gating from -> to, false when the edge does not exist.
func (d *Definition) Capability(from, to State) (rbac.Capability, bool) {
	c, ok := d.edges[from][to]
	return c, ok
}

// States returns the states of the kind in declaration order.
func (d *Definition) States() []State {
	return slices.Clone(d.states)
}

// Result is a validated transition the caller persists together with its activity row.
type Result struct {
	Kind       Kind
	From       State
	To         State
	Capability rbac.Capability
}

// Option adjusts the tables built by New.
type Option func(*config)

type config struct {
	documentCompletion bool
}

// WithDocumentCompletion enables APPROVED -> COMPLETED for document requests.
// APPROVED stops being terminal when enabled.
func WithDocumentCompletion() Option {
	return func(c *config) { c.documentCompletion = true }
}

// Machine evaluates transitions against the per-kind tables and the capability model.
type Machine struct {
	caps        rbac.Checker
	definitions map[Kind]*Definition
}

// New builds a Machine with the document, announcement and payment tables.
func New(caps rbac.Checker, opts ...Option) *Machine {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	document := newDefinition(KindDocument, DocumentPending, DocumentPending, DocumentApproved, DocumentRejected, DocumentCompleted).
		allow(DocumentPending, DocumentApproved, shared.CapDocumentsApprove).
		allow(DocumentPending, DocumentRejected, shared.CapDocumentsReject)
	if cfg.documentCompletion {
		document.allow(DocumentApproved, DocumentCompleted, shared.CapDocumentsComplete)
	}

	announcement := newDefinition(KindAnnouncement, AnnouncementDraft, AnnouncementDraft, AnnouncementPublished).
		allow(AnnouncementDraft, AnnouncementPublished, shared.CapAnnouncementsPublish)

	payment := newDefinition(KindPayment, PaymentPending, PaymentPending, PaymentPaid, PaymentOverdue, PaymentCancelled).
		allow(PaymentPending, PaymentPaid, shared.CapPaymentsConfirm).
		allow(PaymentPending, PaymentOverdue, shared.CapPaymentsFlag).
		allow(PaymentPending, PaymentCancelled, shared.CapPaymentsCancel)

	return &Machine{
		caps: caps,
		definitions: map[Kind]*Definition{
			KindDocument:     document,
			KindAnnouncement: announcement,
			KindPayment:      payment,
		},
	}
}

// Definition returns the table of kind.
func (m *Machine) Definition(kind Kind) (*Definition, bool) {
	d, ok := m.definitions[kind]
	return d, ok
}

// Transition validates current -> requested for p. Errors wrap shared.ErrValidation
// for unknown states or illegal edges, shared.ErrConflict when current is terminal
// and shared.ErrForbidden when p lacks the target's capability. A terminal current
// state wins over every other check on the requested state or the principal.
func (m *Machine) Transition(kind Kind, current, requested State, p rbac.Principal) (Result, error) {
	def, ok := m.definitions[kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown resource kind %q", shared.ErrValidation, kind)
	}
	if !def.Has(current) {
		return Result{}, fmt.Errorf("%w: %s has no state %q", shared.ErrValidation, kind, current)
	}
	if def.Terminal(current) {
		return Result{}, fmt.Errorf("%w: resource already in terminal state %s", shared.ErrConflict, current)
	}
	if !def.Has(requested) {
		return Result{}, fmt.Errorf("%w: %s has no state %q", shared.ErrValidation, kind, requested)
	}
	capability, ok := def.Capability(current, requested)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s cannot move from %s to %s", shared.ErrValidation, kind, current, requested)
	}
	if m.caps == nil || !m.caps.Has(p.Role, capability) {
		return Result{}, fmt.Errorf("%w: role %s lacks %s", shared.ErrForbidden, p.Role, capability)
	}
	return Result{Kind: kind, From: current, To: requested, Capability: capability}, nil
}
