package model

import "github.com/google/uuid"

// Principal is the authenticated caller, taken from the bearer token.
type Principal struct {
	UserID       uuid.UUID  `json:"user_id"`
	Name         string     `json:"name"`
	Role         Role       `json:"role"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
}

// DisplayName is used to attribute notes.
func (p Principal) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return string(p.Role)
}
