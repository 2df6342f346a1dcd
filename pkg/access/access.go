package access

import (
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/tendant/attendance-idm/pkg/errors"
	"github.com/tendant/attendance-idm/pkg/identity"
)

// Operation names a protected action on identity records
type Operation string

const (
	OpReadSelf     Operation = "read_self"
	OpUpdateSelf   Operation = "update_self"
	OpReadByID     Operation = "read_by_id"
	OpReadByEmail  Operation = "read_by_email"
	OpReadByCode   Operation = "read_by_code"
	OpList         Operation = "list"
	OpListByStatus Operation = "list_by_status"
	OpListByRole   Operation = "list_by_role"
	OpUpdate       Operation = "update"
	OpChangeRole   Operation = "change_role"
	OpAssignRole   Operation = "assign_role"
	OpDeactivate   Operation = "deactivate"
	OpReactivate   Operation = "reactivate"
	OpDelete       Operation = "delete"
	OpStats        Operation = "stats"
)

// Operations lists every operation the default policy knows about
var Operations = []Operation{
	OpReadSelf, OpUpdateSelf, OpReadByID, OpReadByEmail, OpReadByCode,
	OpList, OpListByStatus, OpListByRole, OpUpdate, OpChangeRole, OpAssignRole,
	OpDeactivate, OpReactivate, OpDelete, OpStats,
}

// Caller is the authenticated principal making a request. The zero value is
// anonymous.
type Caller struct {
	ID    uuid.UUID
	Email string
	Role  identity.Role
}

// IsAnonymous reports whether the caller carries no usable identity
func (c Caller) IsAnonymous() bool {
	return c.ID == uuid.Nil || !c.Role.IsValid()
}

// Target identifies the record an operation applies to. Unknown fields are
// left zero.
type Target struct {
	ID    uuid.UUID
	Email string
}

// TargetOf builds a Target for an existing user
func TargetOf(u identity.User) Target {
	return Target{ID: u.ID, Email: u.Email}
}

// isCaller reports whether the target is the caller's own record
func (t Target) isCaller(c Caller) bool {
	if t.ID != uuid.Nil && t.ID == c.ID {
		return true
	}
	return t.Email != "" && c.Email != "" && strings.EqualFold(t.Email, c.Email)
}

// Decision is the outcome of an evaluation
type Decision int

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Rule grants or refuses one operation. A rule matches when its operation
// matches and the caller satisfies Any, Self or Roles.
type Rule struct {
	Operation Operation
	Any       bool
	Self      bool
	Roles     []identity.Role
	Effect    Decision
}

func (r Rule) matches(c Caller, op Operation, t Target) bool {
	if r.Operation != op {
		return false
	}
	if r.Any {
		return true
	}
	if r.Self && t.isCaller(c) {
		return true
	}
	for _, role := range r.Roles {
		if c.Role == role {
			return true
		}
	}
	return false
}

// Policy is an ordered rule table. The first matching rule decides and no
// match denies.
type Policy struct {
	rules []Rule
}

// NewPolicy creates a policy from rules, in evaluation order
func NewPolicy(rules ...Rule) *Policy {
	return &Policy{rules: append([]Rule(nil), rules...)}
}

var (
	adminOnly        = []identity.Role{identity.RoleAdmin}
	adminOrProfessor = []identity.Role{identity.RoleAdmin, identity.RoleProfessor}
)

// DefaultRules returns the attendance platform's access rules
func DefaultRules() []Rule {
	return []Rule{
		{Operation: OpReadSelf, Any: true, Effect: Allow},
		{Operation: OpUpdateSelf, Any: true, Effect: Allow},
		{Operation: OpReadByID, Self: true, Roles: adminOnly, Effect: Allow},
		{Operation: OpReadByEmail, Self: true, Roles: adminOnly, Effect: Allow},
		{Operation: OpReadByCode, Self: true, Roles: adminOrProfessor, Effect: Allow},
		{Operation: OpList, Roles: adminOnly, Effect: Allow},
		{Operation: OpListByStatus, Roles: adminOnly, Effect: Allow},
		{Operation: OpListByRole, Roles: adminOrProfessor, Effect: Allow},
		{Operation: OpUpdate, Self: true, Roles: adminOnly, Effect: Allow},
		{Operation: OpChangeRole, Roles: adminOnly, Effect: Allow},
		{Operation: OpAssignRole, Roles: adminOnly, Effect: Allow},
		{Operation: OpDeactivate, Roles: adminOnly, Effect: Allow},
		{Operation: OpReactivate, Roles: adminOnly, Effect: Allow},
		{Operation: OpDelete, Roles: adminOnly, Effect: Allow},
		{Operation: OpStats, Roles: adminOnly, Effect: Allow},
	}
}

var defaultPolicy = NewPolicy(DefaultRules()...)

// DefaultPolicy returns the shared policy built from DefaultRules
func DefaultPolicy() *Policy {
	return defaultPolicy
}

// Evaluate decides whether caller may perform op on target. Anonymous
// callers are always denied.
func (p *Policy) Evaluate(c Caller, op Operation, t Target) Decision {
	if c.IsAnonymous() {
		return Deny
	}
	for _, r := range p.rules {
		if r.matches(c, op, t) {
			return r.Effect
		}
	}
	return Deny
}

// Authorize is Evaluate returning a Forbidden error on denial
func (p *Policy) Authorize(c Caller, op Operation, t Target) error {
	if p.Evaluate(c, op, t) == Allow {
		return nil
	}
	return apperrors.Forbidden("access denied").WithDetail("operation", string(op))
}

// Evaluate applies the default policy
func Evaluate(c Caller, op Operation, t Target) Decision {
	return defaultPolicy.Evaluate(c, op, t)
}

// Authorize applies the default policy
func Authorize(c Caller, op Operation, t Target) error {
	return defaultPolicy.Authorize(c, op, t)
}
