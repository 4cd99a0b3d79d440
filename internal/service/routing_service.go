package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"janasamparka/internal/model"
	"janasamparka/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrWardNotFound       = errors.New("ward not found")
	ErrDepartmentNotFound = errors.New("department not found")
	ErrOfficerNotFound    = errors.New("officer not found")
	ErrComplaintNoWard    = errors.New("complaint is not assigned to a ward")
	ErrEmptyNote          = errors.New("note is empty")

	ErrNotWithDepartment        = errors.New("complaint has not been routed to a department")
	ErrOfficerOutsideDepartment = errors.New("officer does not belong to the complaint's department")

	ErrNoParentBody         = errors.New("ward has no parent panchayat/corporation assigned")
	ErrJurisdictionMismatch = errors.New("department does not serve the ward's jurisdiction")
)

// WardOfficerAuthor attributes public notes left while routing to a department.
const WardOfficerAuthor = "Ward Officer"

// JurisdictionError is returned when a department may not receive a
// complaint from the complaint's ward. Kind is ErrNoParentBody or
// ErrJurisdictionMismatch.
type JurisdictionError struct {
	Kind       error
	Ward       *model.Ward
	Department *model.Department
	Reason     string
}

func (e *JurisdictionError) Error() string {
	return e.Reason
}

func (e *JurisdictionError) Unwrap() error {
	return e.Kind
}

// RoutingService moves complaints from ward to department to officer. It
// only mutates the complaint in memory; persisting is up to the caller.
type RoutingService struct {
	jurisdictions JurisdictionStore
	now           func() time.Time
}

func NewRoutingService(jurisdictions JurisdictionStore) *RoutingService {
	return &RoutingService{
		jurisdictions: jurisdictions,
		now:           time.Now,
	}
}

// AssignToWard puts the complaint back at ward level, clearing any
// department routing.
func (s *RoutingService) AssignToWard(ctx context.Context, c *model.Complaint, wardID uuid.UUID) error {
	if _, err := s.lookupWard(ctx, wardID); err != nil {
		return err
	}

	c.AssignmentType = model.AssignmentWard
	c.WardID = &wardID
	c.DeptID = nil
	c.AssignedTo = nil
	c.WardOfficerID = nil
	return nil
}

// WardAssignToDepartment hands a ward-level complaint to a department of the
// same parent body. The specific officer is chosen later by the department
// head, so assigned_to is cleared.
func (s *RoutingService) WardAssignToDepartment(ctx context.Context, c *model.Complaint, deptID, wardOfficerID uuid.UUID, publicNote string) error {
	dept, err := s.jurisdictions.FindDepartment(ctx, deptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrDepartmentNotFound
		}
		return fmt.Errorf("find department: %w", err)
	}

	if c.WardID == nil {
		return ErrComplaintNoWard
	}
	ward, err := s.lookupWard(ctx, *c.WardID)
	if err != nil {
		return err
	}

	if err := CheckJurisdiction(ward, dept); err != nil {
		return err
	}

	c.AssignmentType = model.AssignmentDepartment
	c.DeptID = &dept.ID
	c.WardOfficerID = &wardOfficerID
	c.AssignedTo = nil

	if note := strings.TrimSpace(publicNote); note != "" {
		c.PublicNotes = c.PublicNotes.Append(s.now(), WardOfficerAuthor, note)
	}
	return nil
}

// DepartmentAssignToOfficer sets the officer working the complaint. The
// complaint must already sit with a department and the officer must belong
// to it.
func (s *RoutingService) DepartmentAssignToOfficer(ctx context.Context, c *model.Complaint, officerID uuid.UUID) error {
	if c.AssignmentType != model.AssignmentDepartment || c.DeptID == nil {
		return ErrNotWithDepartment
	}
	officer, err := s.jurisdictions.FindOfficer(ctx, officerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOfficerNotFound
		}
		return fmt.Errorf("find officer: %w", err)
	}
	if officer.DepartmentID == nil || *officer.DepartmentID != *c.DeptID {
		return ErrOfficerOutsideDepartment
	}
	c.AssignedTo = &officerID
	return nil
}

// AddPublicNote appends a citizen-visible progress update.
func (s *RoutingService) AddPublicNote(c *model.Complaint, note, officerName string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return ErrEmptyNote
	}
	c.PublicNotes = c.PublicNotes.Append(s.now(), officerName, note)
	return nil
}

// AddInternalNote appends officer-only coordination context.
func (s *RoutingService) AddInternalNote(c *model.Complaint, note, officerName string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return ErrEmptyNote
	}
	c.InternalNotes = c.InternalNotes.Append(s.now(), officerName, note)
	return nil
}

func (s *RoutingService) lookupWard(ctx context.Context, id uuid.UUID) (*model.Ward, error) {
	ward, err := s.jurisdictions.FindWard(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrWardNotFound
		}
		return nil, fmt.Errorf("find ward: %w", err)
	}
	return ward, nil
}

// CheckJurisdiction enforces that a department only receives complaints
// from wards under the same gram panchayat, taluk panchayat or city
// corporation.
func CheckJurisdiction(ward *model.Ward, dept *model.Department) error {
	body, ok := ward.ParentBody()
	if !ok {
		return &JurisdictionError{
			Kind:       ErrNoParentBody,
			Ward:       ward,
			Department: dept,
			Reason:     fmt.Sprintf("ward '%s' has no parent panchayat/corporation assigned", ward.Name),
		}
	}

	if !dept.Serves(body) {
		return &JurisdictionError{
			Kind:       ErrJurisdictionMismatch,
			Ward:       ward,
			Department: dept,
			Reason: fmt.Sprintf("department '%s' does not belong to the %s of ward '%s'",
				dept.Name, body.Kind.Label(), ward.Name),
		}
	}
	return nil
}
