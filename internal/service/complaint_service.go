package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"janasamparka/internal/metrics"
	"janasamparka/internal/model"
	"janasamparka/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrComplaintNotFound = errors.New("complaint not found")
	ErrAccessDenied      = errors.New("access denied")
	ErrInvalidLocation   = errors.New("lat and lng must be given together")
	ErrNoLocation        = errors.New("complaint has no coordinates")
	ErrSelfDuplicate     = errors.New("complaint cannot be a duplicate of itself")
	ErrParentIsDuplicate = errors.New("parent complaint is itself a duplicate")
	ErrAlreadyDuplicate  = errors.New("complaint is already marked as a duplicate")
	ErrHasDuplicates     = errors.New("complaint has duplicates linked to it")
	ErrNoDepartment      = errors.New("caller has no department")
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Roles allowed to perform each administrative action. Status changes are
// gated by the workflow permission table instead.
var (
	wardRoutingRoles   = []model.Role{model.RoleAdmin, model.RoleMLA, model.RoleModerator, model.RoleWardOfficer}
	deptRoutingRoles   = []model.Role{model.RoleAdmin, model.RoleModerator, model.RoleWardOfficer}
	officerRoutingRole = []model.Role{model.RoleAdmin, model.RoleModerator, model.RoleDepartmentHead}
	triageRoles        = []model.Role{model.RoleAdmin, model.RoleMLA, model.RoleModerator}
)

// ComplaintService ties the workflow, priority and routing rules to
// persistence. Every write goes through ComplaintStore.Update, which fails
// with repository.ErrConcurrentUpdate if the complaint changed since it was
// loaded.
type ComplaintService struct {
	complaints ComplaintStore
	routing    *RoutingService
	priority   *PriorityService
	now        func() time.Time
}

func NewComplaintService(complaints ComplaintStore, routing *RoutingService, priority *PriorityService) *ComplaintService {
	return &ComplaintService{
		complaints: complaints,
		routing:    routing,
		priority:   priority,
		now:        time.Now,
	}
}

func (s *ComplaintService) Create(ctx context.Context, p model.Principal, req model.CreateComplaintRequest) (*model.Complaint, error) {
	if (req.Lat == nil) != (req.Lng == nil) {
		return nil, ErrInvalidLocation
	}

	now := s.now()
	c := &model.Complaint{
		ID:                  uuid.New(),
		ConstituencyID:      req.ConstituencyID,
		Title:               strings.TrimSpace(req.Title),
		Description:         strings.TrimSpace(req.Description),
		Category:            strings.ToLower(strings.TrimSpace(req.Category)),
		LocationDescription: req.LocationDescription,
		Lat:                 req.Lat,
		Lng:                 req.Lng,
		Status:              model.StatusSubmitted,
		AssignmentType:      model.AssignmentWard,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if p.Role == model.RoleCitizen {
		citizenID := p.UserID
		c.CitizenID = &citizenID
	}

	assessment, sla := s.priority.Assess(PriorityInputFrom(c))
	ApplyAssessment(c, assessment, sla)

	if req.WardID != nil {
		if err := s.routing.AssignToWard(ctx, c, *req.WardID); err != nil {
			metrics.RoutingAttempts.WithLabelValues("ward", metrics.ResultRejected).Inc()
			return nil, err
		}
	}

	change := repository.Change{
		StatusLog: s.statusLog(c.ID, nil, model.StatusSubmitted, p.UserID, nil),
		Events:    []repository.Event{emit(model.EventComplaintCreated, s.event(c, p))},
	}
	if err := s.complaints.Create(ctx, c, change); err != nil {
		return nil, fmt.Errorf("create complaint: %w", err)
	}
	return c, nil
}

// Get returns the complaint as the caller may see it. Citizens only see
// their own complaints and never see internal notes.
func (s *ComplaintService) Get(ctx context.Context, p model.Principal, id uuid.UUID) (*model.Complaint, error) {
	c, err := s.loadVisible(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if p.Role == model.RoleCitizen {
		view := c.ForCitizen()
		return &view, nil
	}
	return c, nil
}

// List returns a page of complaints scoped to the caller. Citizens only see
// their own complaints and department staff only their department's;
// other roles filter freely.
func (s *ComplaintService) List(ctx context.Context, p model.Principal, req model.ListComplaintsRequest) (*model.ComplaintListResponse, error) {
	q := repository.ComplaintQuery{
		ConstituencyID: req.ConstituencyID,
		WardID:         req.WardID,
		DeptID:         req.DeptID,
		Status:         req.Status,
		Category:       strings.TrimSpace(req.Category),
		Search:         strings.TrimSpace(req.Search),
		ByPriority:     req.Sort == "priority",
		Limit:          req.Limit,
		Offset:         req.Offset,
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	switch p.Role {
	case model.RoleCitizen:
		citizenID := p.UserID
		q.CitizenID = &citizenID
	case model.RoleDepartmentHead, model.RoleDepartmentOfficer:
		if p.DepartmentID == nil {
			return nil, ErrNoDepartment
		}
		q.DeptID = p.DepartmentID
	}

	complaints, total, err := s.complaints.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list complaints: %w", err)
	}
	if complaints == nil {
		complaints = []model.Complaint{}
	}
	if p.Role == model.RoleCitizen {
		for i := range complaints {
			complaints[i] = complaints[i].ForCitizen()
		}
	}

	return &model.ComplaintListResponse{
		Complaints: complaints,
		Total:      total,
		Limit:      q.Limit,
		Offset:     q.Offset,
	}, nil
}

func (s *ComplaintService) UpdateStatus(ctx context.Context, p model.Principal, id uuid.UUID, req model.UpdateStatusRequest) (*model.Complaint, error) {
	c, err := s.loadVisible(ctx, p, id)
	if err != nil {
		return nil, err
	}

	from := c.Status
	if err := ValidateStatusTransition(from, req.Status, p.Role); err != nil {
		metrics.StatusTransitions.WithLabelValues(string(from), string(req.Status), metrics.ResultRejected).Inc()
		return nil, err
	}

	c.Status = req.Status
	event := s.event(c, p)
	event.OldStatus = &from
	if req.Note != nil {
		event.Note = strings.TrimSpace(*req.Note)
	}

	err = s.complaints.Update(ctx, c, repository.Change{
		StatusLog: s.statusLog(c.ID, &from, req.Status, p.UserID, req.Note),
		Events:    []repository.Event{emit(model.EventComplaintStatusChanged, event)},
	})
	if err != nil {
		metrics.StatusTransitions.WithLabelValues(string(from), string(req.Status), metrics.ResultError).Inc()
		return nil, s.wrapWrite(err)
	}

	metrics.StatusTransitions.WithLabelValues(string(from), string(req.Status), metrics.ResultOK).Inc()
	return c, nil
}

// Transitions lists the statuses the caller may move the complaint to.
func (s *ComplaintService) Transitions(ctx context.Context, p model.Principal, id uuid.UUID) (*model.TransitionsResponse, error) {
	c, err := s.loadVisible(ctx, p, id)
	if err != nil {
		return nil, err
	}
	allowed := AllowedTransitions(c.Status, p.Role)
	if allowed == nil {
		allowed = []model.ComplaintStatus{}
	}
	return &model.TransitionsResponse{Current: c.Status, Allowed: allowed}, nil
}

func (s *ComplaintService) History(ctx context.Context, p model.Principal, id uuid.UUID) ([]model.StatusLog, error) {
	if _, err := s.loadVisible(ctx, p, id); err != nil {
		return nil, err
	}
	logs, err := s.complaints.StatusHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load status history: %w", err)
	}
	return logs, nil
}

func (s *ComplaintService) AssignWard(ctx context.Context, p model.Principal, id, wardID uuid.UUID) (*model.Complaint, error) {
	return s.route(ctx, p, id, "ward", wardRoutingRoles, func(c *model.Complaint) (string, error) {
		return "", s.routing.AssignToWard(ctx, c, wardID)
	})
}

func (s *ComplaintService) AssignDepartment(ctx context.Context, p model.Principal, id uuid.UUID, req model.AssignDepartmentRequest) (*model.Complaint, error) {
	note := ""
	if req.PublicNote != nil {
		note = strings.TrimSpace(*req.PublicNote)
	}
	return s.route(ctx, p, id, "department", deptRoutingRoles, func(c *model.Complaint) (string, error) {
		return note, s.routing.WardAssignToDepartment(ctx, c, req.DeptID, p.UserID, note)
	})
}

func (s *ComplaintService) AssignOfficer(ctx context.Context, p model.Principal, id, officerID uuid.UUID) (*model.Complaint, error) {
	return s.route(ctx, p, id, "officer", officerRoutingRole, func(c *model.Complaint) (string, error) {
		return "", s.routing.DepartmentAssignToOfficer(ctx, c, officerID)
	})
}

func (s *ComplaintService) route(ctx context.Context, p model.Principal, id uuid.UUID, stage string, roles []model.Role,
	apply func(c *model.Complaint) (string, error)) (*model.Complaint, error) {
	if !hasRole(p, roles) {
		metrics.RoutingAttempts.WithLabelValues(stage, metrics.ResultRejected).Inc()
		return nil, ErrAccessDenied
	}

	c, err := s.loadVisible(ctx, p, id)
	if err != nil {
		return nil, err
	}

	note, err := apply(c)
	if err != nil {
		metrics.RoutingAttempts.WithLabelValues(stage, metrics.ResultRejected).Inc()
		return nil, err
	}

	event := s.event(c, p)
	event.Note = note
	if err := s.complaints.Update(ctx, c, repository.Change{Events: []repository.Event{emit(model.EventComplaintRouted, event)}}); err != nil {
		metrics.RoutingAttempts.WithLabelValues(stage, metrics.ResultError).Inc()
		return nil, s.wrapWrite(err)
	}

	metrics.RoutingAttempts.WithLabelValues(stage, metrics.ResultOK).Inc()
	return c, nil
}

// AddPublicNote records a citizen-visible update and notifies the citizen.
func (s *ComplaintService) AddPublicNote(ctx context.Context, p model.Principal, id uuid.UUID, note string) (*model.Complaint, error) {
	if !p.Role.IsOfficial() || p.Role == model.RoleAuditor {
		return nil, ErrAccessDenied
	}
	c, err := s.loadVisible(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := s.routing.AddPublicNote(c, note, p.DisplayName()); err != nil {
		return nil, err
	}

	event := s.event(c, p)
	event.Note = strings.TrimSpace(note)
	if err := s.complaints.Update(ctx, c, repository.Change{Events: []repository.Event{emit(model.EventComplaintPublicNote, event)}}); err != nil {
		return nil, s.wrapWrite(err)
	}
	return c, nil
}

func (s *ComplaintService) AddInternalNote(ctx context.Context, p model.Principal, id uuid.UUID, note string) (*model.Complaint, error) {
	if !p.Role.IsOfficial() || p.Role == model.RoleAuditor {
		return nil, ErrAccessDenied
	}
	c, err := s.loadVisible(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if err := s.routing.AddInternalNote(c, note, p.DisplayName()); err != nil {
		return nil, err
	}
	if err := s.complaints.Update(ctx, c, repository.Change{}); err != nil {
		return nil, s.wrapWrite(err)
	}
	return c, nil
}

// Rescore recomputes the priority from the current text. The SLA due date
// stays anchored to the complaint's creation time.
func (s *ComplaintService) Rescore(ctx context.Context, p model.Principal, id uuid.UUID) (*model.Complaint, error) {
	if !hasRole(p, triageRoles) {
		return nil, ErrAccessDenied
	}
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	assessment := s.priority.Score(PriorityInputFrom(c))
	ApplyAssessment(c, assessment, GetSLAForCategory(c.Category, string(assessment.PriorityLevel), c.CreatedAt))

	if err := s.complaints.Update(ctx, c, repository.Change{}); err != nil {
		return nil, s.wrapWrite(err)
	}
	return c, nil
}

// MarkDuplicate links a complaint to the complaint it repeats and bumps the
// parent's duplicate count in the same write.
func (s *ComplaintService) MarkDuplicate(ctx context.Context, p model.Principal, id, parentID uuid.UUID) (*model.Complaint, error) {
	if !hasRole(p, triageRoles) {
		return nil, ErrAccessDenied
	}
	if id == parentID {
		return nil, ErrSelfDuplicate
	}

	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsDuplicate {
		return nil, ErrAlreadyDuplicate
	}
	if c.DuplicateCount > 0 {
		return nil, ErrHasDuplicates
	}
	parent, err := s.load(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.IsDuplicate {
		return nil, ErrParentIsDuplicate
	}

	c.IsDuplicate = true
	c.ParentComplaintID = &parent.ID
	if err := s.complaints.Update(ctx, c, repository.Change{IncrementDuplicateCount: &parent.ID}); err != nil {
		return nil, s.wrapWrite(err)
	}
	return c, nil
}

// Duplicates lists likely duplicates near the complaint. radiusMeters <= 0
// uses the configured default.
func (s *ComplaintService) Duplicates(ctx context.Context, p model.Principal, id uuid.UUID, radiusMeters float64) (*model.DuplicateListResponse, error) {
	if !p.Role.IsOfficial() {
		return nil, ErrAccessDenied
	}
	c, err := s.loadVisible(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !c.HasLocation() {
		return nil, ErrNoLocation
	}
	if radiusMeters <= 0 {
		radiusMeters = s.priority.duplicateRadius
	}

	dups, err := s.priority.DetectNearbyDuplicates(ctx, c.ID, *c.Lat, *c.Lng, c.Category, radiusMeters)
	if err != nil {
		return nil, err
	}
	return &model.DuplicateListResponse{Duplicates: dups, RadiusMeters: radiusMeters, Total: len(dups)}, nil
}

// Queue ranks the complaint within its constituency, and within its
// department once it has one.
func (s *ComplaintService) Queue(ctx context.Context, p model.Principal, id uuid.UUID) (model.QueuePosition, error) {
	c, err := s.loadVisible(ctx, p, id)
	if err != nil {
		return model.QueuePosition{}, err
	}
	return s.priority.CalculateQueuePosition(ctx, c.ID, c.ConstituencyID, c.DeptID)
}

// AnalysisRoles may run cluster analysis.
var AnalysisRoles = []model.Role{model.RoleAdmin, model.RoleMLA, model.RoleModerator, model.RoleAuditor}

func (s *ComplaintService) load(ctx context.Context, id uuid.UUID) (*model.Complaint, error) {
	c, err := s.complaints.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrComplaintNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load complaint: %w", err)
	}
	return c, nil
}

// loadVisible loads a complaint the caller may act on. Citizens reach only
// their own complaints and department staff only those routed to their
// department.
func (s *ComplaintService) loadVisible(ctx context.Context, p model.Principal, id uuid.UUID) (*model.Complaint, error) {
	if p.Role.IsDepartmentStaff() && p.DepartmentID == nil {
		return nil, ErrNoDepartment
	}
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case p.Role == model.RoleCitizen:
		if c.CitizenID == nil || *c.CitizenID != p.UserID {
			return nil, ErrAccessDenied
		}
	case p.Role.IsDepartmentStaff():
		if c.DeptID == nil || *c.DeptID != *p.DepartmentID {
			return nil, ErrAccessDenied
		}
	}
	return c, nil
}

func (s *ComplaintService) wrapWrite(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrComplaintNotFound
	}
	return fmt.Errorf("save complaint: %w", err)
}

func (s *ComplaintService) statusLog(id uuid.UUID, from *model.ComplaintStatus, to model.ComplaintStatus, actor uuid.UUID, note *string) *model.StatusLog {
	var trimmed *string
	if note != nil && strings.TrimSpace(*note) != "" {
		n := strings.TrimSpace(*note)
		trimmed = &n
	}
	return &model.StatusLog{
		ID:          uuid.New(),
		ComplaintID: id,
		OldStatus:   from,
		NewStatus:   to,
		ChangedBy:   &actor,
		Note:        trimmed,
		Timestamp:   s.now(),
	}
}

func (s *ComplaintService) event(c *model.Complaint, p model.Principal) model.ComplaintEvent {
	return model.ComplaintEvent{
		ComplaintID:    c.ID,
		ConstituencyID: c.ConstituencyID,
		CitizenID:      c.CitizenID,
		Title:          c.Title,
		Category:       c.Category,
		Priority:       c.Priority,
		NewStatus:      c.Status,
		AssignmentType: c.AssignmentType,
		DeptID:         c.DeptID,
		AssignedTo:     c.AssignedTo,
		ActorID:        p.UserID,
		Timestamp:      s.now().Unix(),
	}
}

func emit(key string, e model.ComplaintEvent) repository.Event {
	return repository.Event{RoutingKey: key, Payload: e}
}

func hasRole(p model.Principal, roles []model.Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
