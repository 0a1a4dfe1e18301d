package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AuditSink receives decision records fire-and-forget. Implementations must
// not block the caller; the decision path never waits on audit persistence.
type AuditSink interface {
	Decision(ctx context.Context, rec DecisionRecord)
}

// DecisionRecord is handed to the audit collaborator for every check.
type DecisionRecord struct {
	PrincipalID uuid.UUID
	Allowed     bool
	Reason      DenyReason
	Requirement Requirement
	Resource    string
	At          time.Time
}

// Observer counts decisions for metrics.
type Observer interface {
	ObserveDecision(allowed bool, reason string)
}

// Authorizer is the single entry point for authorization checks: account
// gate first, then cached resolution, then the requirement evaluation.
type Authorizer struct {
	guard    *Guard
	cache    *DecisionCache
	audit    AuditSink
	observer Observer
}

// NewAuthorizer constructs an Authorizer. Audit and observer may be nil.
func NewAuthorizer(guard *Guard, cache *DecisionCache, audit AuditSink, observer Observer) *Authorizer {
	return &Authorizer{guard: guard, cache: cache, audit: audit, observer: observer}
}

// Authorize checks the requirement for the principal and returns a Decision.
//
// A non-nil error is returned only for transient store failures
// (ErrStoreUnavailable): the system could not decide, and the caller may
// retry. Every other negative outcome is a Decision with Allowed=false, so
// authorization fails closed, never open. The resource descriptor is passed
// through to the audit record untouched.
func (a *Authorizer) Authorize(ctx context.Context, principalID uuid.UUID, req Requirement, resource string) (Decision, error) {
	decision, err := a.decide(ctx, principalID, req)
	if err != nil {
		return Decision{}, err
	}
	a.record(ctx, principalID, req, resource, decision)
	return decision, nil
}

func (a *Authorizer) decide(ctx context.Context, principalID uuid.UUID, req Requirement) (Decision, error) {
	if err := a.guard.Check(ctx, principalID); err != nil {
		return denyFromError(err)
	}

	result, err := a.cache.GetOrCompute(ctx, principalID)
	if err != nil {
		return denyFromError(err)
	}

	// Module gate first: coarser and cheaper, matching deployments where a
	// request is routed to a module before a specific permission applies.
	if req.Module != "" && !result.HasModule(req.Module) {
		return Decision{Reason: DenyMissingModule}, nil
	}
	if req.Permission != "" && !result.HasPermission(req.Permission) {
		return Decision{Reason: DenyMissingPermission}, nil
	}

	return Decision{
		Allowed:        true,
		Scope:          result.Scope,
		OrganizationID: result.OrganizationID,
	}, nil
}

func (a *Authorizer) record(ctx context.Context, principalID uuid.UUID, req Requirement, resource string, decision Decision) {
	if a.observer != nil {
		a.observer.ObserveDecision(decision.Allowed, string(decision.Reason))
	}
	if a.audit == nil {
		return
	}
	a.audit.Decision(ctx, DecisionRecord{
		PrincipalID: principalID,
		Allowed:     decision.Allowed,
		Reason:      decision.Reason,
		Requirement: req,
		Resource:    resource,
		At:          time.Now().UTC(),
	})
}

// denyFromError maps terminal resolution errors onto deny decisions and
// passes transient failures through.
func denyFromError(err error) (Decision, error) {
	if _, ok := IsAccountInactive(err); ok {
		return Decision{Reason: DenyAccountInactive}, nil
	}
	if errors.Is(err, ErrPrincipalNotFound) {
		return Decision{Reason: DenyUnknownPrincipal}, nil
	}
	return Decision{}, err
}
