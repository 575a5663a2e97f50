package goTrust

import "context"

// CheckPermission reports whether role holds permission in the frozen table.
// The decision depends on nothing else; denials are audited with the actor
// from WithActorID.
func (e *Engine) CheckPermission(ctx context.Context, role, permission string) bool {
	if e == nil || e.permissions == nil {
		return false
	}
	if e.permissions.Allowed(role, permission) {
		e.metricInc(MetricPermissionGranted)
		return true
	}
	e.denied(ctx, ActorIDFromContext(ctx), role, permission)
	return false
}

// CheckResource grants permission when role holds it or, failing that, when
// owner reports actorID as the owner of the resource. Ownership grants are
// audited separately from table grants.
//
// An ownership grant that cannot be audited under a fail-closed audit policy
// is a deny.
func (e *Engine) CheckResource(ctx context.Context, role, actorID, permission string, owner Ownership) bool {
	ok, err := e.checkResource(ctx, role, actorID, permission, owner)
	return ok && err == nil
}

func (e *Engine) checkResource(ctx context.Context, role, actorID, permission string, owner Ownership) (bool, error) {
	if e == nil || e.permissions == nil {
		return false, nil
	}
	if e.permissions.Allowed(role, permission) {
		e.metricInc(MetricPermissionGranted)
		return true, nil
	}
	if owner != nil && owner(actorID) {
		if err := e.emit(ctx, AuditEvent{
			ActorID: actorID,
			Action:  auditOwnershipGrant,
			Outcome: outcomeSuccess,
			Context: map[string]string{"role": role, "permission": permission},
		}); err != nil {
			return false, err
		}
		e.metricInc(MetricOwnershipGrant)
		return true, nil
	}
	e.denied(ctx, actorID, role, permission)
	return false, nil
}

// Authorize is the policy-enforcement point: it validates the session behind
// token, evaluates permission for the session's role and account, and
// requires an active step-up for permissions configured to need one.
func (e *Engine) Authorize(ctx context.Context, token string, sig Signals, permission string, owner Ownership) (*SessionResult, error) {
	res, err := e.ValidateSession(ctx, token, sig)
	if err != nil {
		return nil, err
	}
	ok, err := e.checkResource(ctx, res.Role, res.AccountID, permission, owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPermissionDenied
	}
	if e.permissions.RequiresStepUp(permission) && !res.StepUpActive {
		e.metricInc(MetricStepUpRequired)
		_ = e.emit(ctx, AuditEvent{
			ActorID: res.AccountID,
			Action:  auditStepUpRequired,
			Outcome: outcomeDenied,
			Context: map[string]string{"permission": permission},
		})
		return nil, ErrStepUpRequired
	}
	return res, nil
}

// HasRoleAtLeast compares role against min in the configured hierarchy. It is
// meant for coarse gating; use CheckPermission for decisions.
func (e *Engine) HasRoleAtLeast(role, min string) bool {
	if e == nil || e.permissions == nil {
		return false
	}
	return e.permissions.AtLeast(role, min)
}

// Permissions lists the permissions role holds.
func (e *Engine) Permissions(role string) []string {
	if e == nil || e.permissions == nil {
		return nil
	}
	return e.permissions.Permissions(role)
}

func (e *Engine) denied(ctx context.Context, actorID, role, permission string) {
	e.metricInc(MetricPermissionDenied)
	_ = e.emit(ctx, AuditEvent{
		ActorID:  actorID,
		Action:   auditPermissionDenied,
		Outcome:  outcomeDenied,
		Severity: SeverityWarning,
		Context:  map[string]string{"role": role, "permission": permission},
	})
}
