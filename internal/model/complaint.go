package model

import (
	"time"

	"github.com/google/uuid"
)

type ComplaintStatus string

const (
	StatusSubmitted  ComplaintStatus = "submitted"
	StatusAssigned   ComplaintStatus = "assigned"
	StatusInProgress ComplaintStatus = "in_progress"
	StatusResolved   ComplaintStatus = "resolved"
	StatusClosed     ComplaintStatus = "closed"
	StatusRejected   ComplaintStatus = "rejected"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []ComplaintStatus{
	StatusSubmitted,
	StatusAssigned,
	StatusInProgress,
	StatusResolved,
	StatusClosed,
	StatusRejected,
}

// OpenStatuses are the statuses that still count against a queue.
var OpenStatuses = []ComplaintStatus{StatusSubmitted, StatusAssigned, StatusInProgress}

func (s ComplaintStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s ComplaintStatus) IsOpen() bool {
	for _, open := range OpenStatuses {
		if s == open {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type AssignmentType string

const (
	AssignmentWard       AssignmentType = "ward"
	AssignmentDepartment AssignmentType = "department"
)

type Role string

const (
	RoleAdmin             Role = "admin"
	RoleMLA               Role = "mla"
	RoleModerator         Role = "moderator"
	RoleWardOfficer       Role = "ward_officer"
	RoleDepartmentHead    Role = "department_head"
	RoleDepartmentOfficer Role = "department_officer"
	RoleCitizen           Role = "citizen"
	RoleAuditor           Role = "auditor"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleMLA, RoleModerator, RoleWardOfficer,
		RoleDepartmentHead, RoleDepartmentOfficer, RoleCitizen, RoleAuditor:
		return true
	}
	return false
}

// IsOfficial reports whether the role acts on behalf of the administration.
func (r Role) IsOfficial() bool {
	return r.Valid() && r != RoleCitizen
}

func (r Role) IsDepartmentStaff() bool {
	return r == RoleDepartmentHead || r == RoleDepartmentOfficer
}

type Complaint struct {
	ID                         uuid.UUID       `json:"id"`
	ConstituencyID             uuid.UUID       `json:"constituency_id"`
	CitizenID                  *uuid.UUID      `json:"citizen_id,omitempty"`
	Title                      string          `json:"title"`
	Description                string          `json:"description"`
	Category                   string          `json:"category"`
	LocationDescription        *string         `json:"location_description,omitempty"`
	Lat                        *float64        `json:"lat,omitempty"`
	Lng                        *float64        `json:"lng,omitempty"`
	Status                     ComplaintStatus `json:"status"`
	Priority                   Priority        `json:"priority"`
	AssignmentType             AssignmentType  `json:"assignment_type"`
	WardID                     *uuid.UUID      `json:"ward_id,omitempty"`
	DeptID                     *uuid.UUID      `json:"dept_id,omitempty"`
	WardOfficerID              *uuid.UUID      `json:"ward_officer_id,omitempty"`
	AssignedTo                 *uuid.UUID      `json:"assigned_to,omitempty"`
	PriorityScore              *float64        `json:"priority_score,omitempty"`
	IsEmergency                bool            `json:"is_emergency"`
	AffectedPopulationEstimate int             `json:"affected_population_estimate"`
	SLADueAt                   *time.Time      `json:"sla_due_at,omitempty"`
	IsDuplicate                bool            `json:"is_duplicate"`
	ParentComplaintID          *uuid.UUID      `json:"parent_complaint_id,omitempty"`
	DuplicateCount             int             `json:"duplicate_count"`
	PublicNotes                NoteLog         `json:"public_notes"`
	InternalNotes              NoteLog         `json:"internal_notes,omitempty"`
	Version                    int             `json:"version"`
	CreatedAt                  time.Time       `json:"created_at"`
	UpdatedAt                  time.Time       `json:"updated_at"`
}

// HasLocation reports whether both coordinates are present.
func (c *Complaint) HasLocation() bool {
	return c.Lat != nil && c.Lng != nil
}

// LocationText returns the free-text location or "".
func (c *Complaint) LocationText() string {
	if c.LocationDescription == nil {
		return ""
	}
	return *c.LocationDescription
}

// ForCitizen returns a copy with officer-only fields removed.
func (c Complaint) ForCitizen() Complaint {
	c.InternalNotes = nil
	return c
}

type StatusLog struct {
	ID          uuid.UUID        `json:"id"`
	ComplaintID uuid.UUID        `json:"complaint_id"`
	OldStatus   *ComplaintStatus `json:"old_status,omitempty"`
	NewStatus   ComplaintStatus  `json:"new_status"`
	ChangedBy   *uuid.UUID       `json:"changed_by,omitempty"`
	Note        *string          `json:"note,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// Request/Response DTOs
type CreateComplaintRequest struct {
	ConstituencyID      uuid.UUID  `json:"constituency_id" binding:"required"`
	Title               string     `json:"title" binding:"required,max=255"`
	Description         string     `json:"description" binding:"required"`
	Category            string     `json:"category" binding:"required"`
	LocationDescription *string    `json:"location_description"`
	Lat                 *float64   `json:"lat" binding:"omitempty,min=-90,max=90"`
	Lng                 *float64   `json:"lng" binding:"omitempty,min=-180,max=180"`
	WardID              *uuid.UUID `json:"ward_id"`
}

type UpdateStatusRequest struct {
	Status ComplaintStatus `json:"status" binding:"required"`
	Note   *string         `json:"note"`
}

type AssignWardRequest struct {
	WardID uuid.UUID `json:"ward_id" binding:"required"`
}

type AssignDepartmentRequest struct {
	DeptID     uuid.UUID `json:"dept_id" binding:"required"`
	PublicNote *string   `json:"public_note"`
}

type AssignOfficerRequest struct {
	OfficerID uuid.UUID `json:"officer_id" binding:"required"`
}

type AddNoteRequest struct {
	Note string `json:"note" binding:"required"`
}

type PriorityPreviewRequest struct {
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Category            string   `json:"category"`
	LocationDescription *string  `json:"location_description"`
	Lat                 *float64 `json:"lat"`
	Lng                 *float64 `json:"lng"`
}

type TransitionsResponse struct {
	Current ComplaintStatus   `json:"current"`
	Allowed []ComplaintStatus `json:"allowed"`
}

// ListComplaintsRequest is bound from the query string of GET /complaints.
// The id filters are parsed by the handler.
type ListComplaintsRequest struct {
	ConstituencyID *uuid.UUID      `form:"-"`
	WardID         *uuid.UUID      `form:"-"`
	DeptID         *uuid.UUID      `form:"-"`
	Status         ComplaintStatus `form:"status"`
	Category       string          `form:"category"`
	Search         string          `form:"search"`
	Sort           string          `form:"sort" binding:"omitempty,oneof=recent priority"`
	Limit          int             `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset         int             `form:"offset" binding:"omitempty,min=0"`
}

type ComplaintListResponse struct {
	Complaints []Complaint `json:"complaints"`
	Total      int         `json:"total"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
}

type StatusLogListResponse struct {
	History []StatusLog `json:"history"`
	Total   int         `json:"total"`
}
