package service

import (
	"errors"
	"fmt"
	"strings"

	"janasamparka/internal/model"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPermissionDenied  = errors.New("role not permitted for transition")
)

type transition struct {
	from model.ComplaintStatus
	to   model.ComplaintStatus
}

var statusTransitions = map[model.ComplaintStatus][]model.ComplaintStatus{
	model.StatusSubmitted:  {model.StatusAssigned, model.StatusRejected},
	model.StatusAssigned:   {model.StatusInProgress, model.StatusRejected},
	model.StatusInProgress: {model.StatusResolved, model.StatusAssigned, model.StatusRejected},
	// Reopen path when the work is not satisfactory.
	model.StatusResolved: {model.StatusClosed, model.StatusInProgress},
	model.StatusClosed:   {},
	model.StatusRejected: {},
}

var transitionPermissions = map[transition][]model.Role{
	{model.StatusSubmitted, model.StatusAssigned}:  {model.RoleAdmin, model.RoleMLA, model.RoleModerator},
	{model.StatusSubmitted, model.StatusRejected}:  {model.RoleAdmin, model.RoleMLA, model.RoleModerator},
	{model.StatusAssigned, model.StatusInProgress}: {model.RoleAdmin, model.RoleModerator, model.RoleDepartmentOfficer},
	{model.StatusAssigned, model.StatusRejected}:   {model.RoleAdmin, model.RoleMLA, model.RoleModerator},
	{model.StatusInProgress, model.StatusResolved}: {model.RoleAdmin, model.RoleDepartmentOfficer},
	{model.StatusInProgress, model.StatusAssigned}: {model.RoleAdmin, model.RoleModerator, model.RoleDepartmentOfficer},
	{model.StatusInProgress, model.StatusRejected}: {model.RoleAdmin, model.RoleModerator},
	{model.StatusResolved, model.StatusClosed}:     {model.RoleAdmin, model.RoleMLA, model.RoleModerator, model.RoleCitizen},
	{model.StatusResolved, model.StatusInProgress}: {model.RoleAdmin, model.RoleMLA, model.RoleModerator, model.RoleCitizen},
}

// WorkflowError explains why a status change was refused. Kind is either
// ErrInvalidTransition or ErrPermissionDenied.
type WorkflowError struct {
	Kind   error
	From   model.ComplaintStatus
	To     model.ComplaintStatus
	Role   model.Role
	Reason string
}

func (e *WorkflowError) Error() string {
	return e.Reason
}

func (e *WorkflowError) Unwrap() error {
	return e.Kind
}

// IsValidTransition reports whether next is a listed successor of current.
// Unknown statuses have no successors.
func IsValidTransition(current, next model.ComplaintStatus) bool {
	for _, s := range statusTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// CanUserTransition checks the role allow-list for the pair. Pairs missing
// from the table are denied for every role.
func CanUserTransition(current, next model.ComplaintStatus, role model.Role) bool {
	for _, r := range transitionPermissions[transition{current, next}] {
		if r == role {
			return true
		}
	}
	return false
}

// ValidateStatusTransition runs both checks and returns a *WorkflowError on
// the first failure.
func ValidateStatusTransition(current, next model.ComplaintStatus, role model.Role) error {
	if !IsValidTransition(current, next) {
		return &WorkflowError{
			Kind:   ErrInvalidTransition,
			From:   current,
			To:     next,
			Role:   role,
			Reason: invalidTransitionReason(current, next),
		}
	}

	if !CanUserTransition(current, next, role) {
		return &WorkflowError{
			Kind: ErrPermissionDenied,
			From: current,
			To:   next,
			Role: role,
			Reason: fmt.Sprintf("role '%s' cannot change status from '%s' to '%s'; requires one of: %s",
				role, current, next, joinRoles(transitionPermissions[transition{current, next}])),
		}
	}

	return nil
}

// CheckStatusTransition is the non-failing form of ValidateStatusTransition.
func CheckStatusTransition(current, next model.ComplaintStatus, role model.Role) bool {
	return ValidateStatusTransition(current, next, role) == nil
}

// AllowedTransitions lists the statuses role may move current to, in table
// order. A zero role skips the permission check.
func AllowedTransitions(current model.ComplaintStatus, role model.Role) []model.ComplaintStatus {
	allowed := []model.ComplaintStatus{}
	for _, next := range statusTransitions[current] {
		if role == "" || CanUserTransition(current, next, role) {
			allowed = append(allowed, next)
		}
	}
	return allowed
}

func IsTerminalStatus(status model.ComplaintStatus) bool {
	next, known := statusTransitions[status]
	return known && len(next) == 0
}

func CanReopen(status model.ComplaintStatus) bool {
	return status == model.StatusResolved
}

// RequiresWorkApproval is true while resolution evidence is awaiting sign-off.
func RequiresWorkApproval(status model.ComplaintStatus) bool {
	return status == model.StatusResolved
}

func invalidTransitionReason(current, next model.ComplaintStatus) string {
	valid := statusTransitions[current]
	if len(valid) == 0 {
		if _, known := statusTransitions[current]; known {
			return fmt.Sprintf("cannot change status from '%s': it is a terminal status", current)
		}
		return fmt.Sprintf("unknown status '%s'", current)
	}
	names := make([]string, len(valid))
	for i, s := range valid {
		names[i] = string(s)
	}
	return fmt.Sprintf("cannot change status from '%s' to '%s'; valid transitions: %s",
		current, next, strings.Join(names, ", "))
}

func joinRoles(roles []model.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
