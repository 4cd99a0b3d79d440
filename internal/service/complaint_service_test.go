package service

import (
	"context"
	"testing"
	"time"

	"janasamparka/internal/metrics"
	"janasamparka/internal/model"
	"janasamparka/internal/repository"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var complaintClock = time.Date(2024, 8, 15, 11, 0, 0, 0, time.UTC)

type complaintFixture struct {
	svc   *ComplaintService
	store *fakeComplaintStore
	f     *routingFixture

	citizen   model.Principal
	admin     model.Principal
	moderator model.Principal
	ward      model.Principal
	head      model.Principal
	officer   model.Principal
	auditor   model.Principal
}

func newComplaintFixture() *complaintFixture {
	rf := newRoutingFixture()
	store := newFakeComplaintStore()
	priority := NewPriorityService(store, 0)
	priority.now = fixedClock(complaintClock)

	svc := NewComplaintService(store, rf.svc, priority)
	svc.now = fixedClock(complaintClock)

	return &complaintFixture{
		svc:       svc,
		store:     store,
		f:         rf,
		citizen:   model.Principal{UserID: uuid.New(), Name: "Asha", Role: model.RoleCitizen},
		admin:     model.Principal{UserID: uuid.New(), Name: "Admin", Role: model.RoleAdmin},
		moderator: model.Principal{UserID: uuid.New(), Name: "Mod", Role: model.RoleModerator},
		ward:      model.Principal{UserID: uuid.New(), Name: "Ward 3 Officer", Role: model.RoleWardOfficer},
		head:      model.Principal{UserID: uuid.New(), Name: "PWD Head", Role: model.RoleDepartmentHead, DepartmentID: &rf.putturPWD.ID},
		officer:   model.Principal{UserID: rf.officer.ID, Name: rf.officer.Name, Role: model.RoleDepartmentOfficer, DepartmentID: &rf.putturPWD.ID},
		auditor:   model.Principal{UserID: uuid.New(), Name: "Auditor", Role: model.RoleAuditor},
	}
}

func (cf *complaintFixture) create(t *testing.T) *model.Complaint {
	t.Helper()
	c, err := cf.svc.Create(context.Background(), cf.citizen, model.CreateComplaintRequest{
		ConstituencyID: uuid.New(),
		Title:          "Large pothole on main road",
		Description:    "Two-wheelers keep falling",
		Category:       "Roads",
		Lat:            ptr(12.76),
		Lng:            ptr(75.20),
		WardID:         &cf.f.putturWard.ID,
	})
	require.NoError(t, err)
	return c
}

func TestCreateComplaint(t *testing.T) {
	cf := newComplaintFixture()
	c := cf.create(t)

	assert.Equal(t, model.StatusSubmitted, c.Status)
	assert.Equal(t, "roads", c.Category)
	assert.Equal(t, cf.citizen.UserID, *c.CitizenID)
	assert.Equal(t, cf.f.putturWard.ID, *c.WardID)
	assert.Equal(t, model.AssignmentWard, c.AssignmentType)
	require.NotNil(t, c.PriorityScore)
	require.NotNil(t, c.SLADueAt)
	assert.Equal(t, 100, c.AffectedPopulationEstimate)
	assert.Equal(t, 1, c.Version)

	history, err := cf.svc.History(context.Background(), cf.citizen, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].OldStatus)
	assert.Equal(t, model.StatusSubmitted, history[0].NewStatus)

	assert.Equal(t, []string{model.EventComplaintCreated}, cf.store.routingKeys())
}

func TestCreateComplaintValidation(t *testing.T) {
	cf := newComplaintFixture()
	ctx := context.Background()

	_, err := cf.svc.Create(ctx, cf.citizen, model.CreateComplaintRequest{Title: "x", Lat: ptr(1.0)})
	assert.ErrorIs(t, err, ErrInvalidLocation)

	_, err = cf.svc.Create(ctx, cf.citizen, model.CreateComplaintRequest{Title: "x", WardID: ptr(uuid.New())})
	assert.ErrorIs(t, err, ErrWardNotFound)
	assert.Empty(t, cf.store.routingKeys())
}

func TestGetHidesInternalNotesFromCitizens(t *testing.T) {
	cf := newComplaintFixture()
	ctx := context.Background()
	c := cf.create(t)

	_, err := cf.svc.AssignDepartment(ctx, cf.ward, c.ID, model.AssignDepartmentRequest{DeptID: cf.f.putturPWD.ID})
	require.NoError(t, err)
	_, err = cf.svc.AddInternalNote(ctx, cf.officer, c.ID, "Needs budget approval")
	require.NoError(t, err)
	_, err = cf.svc.AddPublicNote(ctx, cf.officer, c.ID, "Inspection done")
	require.NoError(t, err)

	asCitizen, err := cf.svc.Get(ctx, cf.citizen, c.ID)
	require.NoError(t, err)
	assert.Empty(t, asCitizen.InternalNotes)
	assert.Len(t, asCitizen.PublicNotes, 1)

	asOfficer, err := cf.svc.Get(ctx, cf.officer, c.ID)
	require.NoError(t, err)
	assert.Len(t, asOfficer.InternalNotes, 1)

	stranger := model.Principal{UserID: uuid.New(), Role: model.RoleCitizen}
	_, err = cf.svc.Get(ctx, stranger, c.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = cf.svc.Get(ctx, cf.admin, uuid.New())
	assert.ErrorIs(t, err, ErrComplaintNotFound)

	_, err = cf.svc.AddInternalNote(ctx, cf.citizen, c.ID, "hello")
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = cf.svc.AddPublicNote(ctx, cf.auditor, c.ID, "hello")
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestComplaintLifecycle(t *testing.T) {
	cf := newComplaintFixture()
	ctx := context.Background()
	c := cf.create(t)

	step := func(p model.Principal, to model.ComplaintStatus) {
		t.Helper()
		updated, err := cf.svc.UpdateStatus(ctx, p, c.ID, model.UpdateStatusRequest{Status: to, Note: ptr(" moving on ")})
		require.NoError(t, err)
		assert.Equal(t, to, updated.Status)
	}

	_, err := cf.svc.AssignDepartment(ctx, cf.ward, c.ID, model.AssignDepartmentRequest{DeptID: cf.f.putturPWD.ID, PublicNote: ptr("Sent to PWD")})
	require.NoError(t, err)
	_, err = cf.svc.AssignOfficer(ctx, cf.head, c.ID, cf.f.officer.ID)
	require.NoError(t, err)

	step(cf.moderator, model.StatusAssigned)
	step(cf.officer, model.StatusInProgress)
	step(cf.officer, model.StatusResolved)
	step(cf.citizen, model.StatusClosed)

	history, err := cf.svc.History(ctx, cf.admin, c.ID)
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, model.StatusResolved, *history[4].OldStatus)
	assert.Equal(t, "moving on", *history[4].Note)

	final, err := cf.svc.Get(ctx, cf.admin, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, final.Version)
	assert.Equal(t, cf.f.officer.ID, *final.AssignedTo)
	assert.Equal(t, "[2024-07-01 10:30] Ward Officer: Sent to PWD", final.PublicNotes.String())

	assert.Equal(t, []string{
		model.EventComplaintCreated,
		model.EventComplaintRouted,
		model.EventComplaintRouted,
		model.EventComplaintStatusChanged,
		model.EventComplaintStatusChanged,
		model.EventComplaintStatusChanged,
		model.EventComplaintStatusChanged,
	}, cf.store.routingKeys())

	transitions, err := cf.svc.Transitions(ctx, cf.admin, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, transitions.Current)
	assert.Empty(t, transitions.Allowed)
}

func TestUpdateStatusRejections(t *testing.T) {
	cf := newComplaintFixture()
	ctx := context.Background()
	c := cf.create(t)

	_, err := cf.svc.UpdateStatus(ctx, cf.admin, c.ID, model.UpdateStatusRequest{Status: model.StatusResolved})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = cf.svc.UpdateStatus(ctx, cf.citizen, c.ID, model.UpdateStatusRequest{Status: model.StatusAssigned})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	stored, err := cf.store.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, stored.Status)
	assert.Equal(t, 1, stored.Version)

	transitions, err := cf.svc.Transitions(ctx, cf.moderator, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.ComplaintStatus{model.StatusAssigned, model.StatusRejected}, transitions.Allowed)
}

func TestStaleWriteIsRejected(t *testing.T) {
	cf := newComplaintFixture()
	ctx := context.Background()
	c := cf.create(t)

	stale, err := cf.store.FindByID(ctx, c.ID)
	require.NoError(t, err)

	_, err = cf.svc.UpdateStatus(ctx, cf.moderator, c.ID, model.UpdateStatusRequest{Status: model.StatusAssigned})
	require.NoError(t, err)

	stale.Status = model.StatusRejected
	err = cf.store.Update(ctx, stale, repository.Change{})
	assert.ErrorIs(t, err, repository.ErrConcurrentUpdate)
}

func TestRoutingRoleGates(t *testing.T) {
	cf := newComplaintFixture()
	ctx := context.Background()
	c := cf.create(t)

	_, err := cf.svc.AssignDepartment(ctx, cf.citizen, c.ID, model.AssignDepartmentRequest{DeptID: cf.f.putturPWD.ID})
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = cf.svc.AssignOfficer(ctx, cf.ward, c.ID, cf.f.officer.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)
	_, err = cf.svc.AssignWard(ctx, cf.officer, c.ID, cf.f.orphanWard.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = cf.svc.AssignDepartment(ctx, cf.ward, c.ID, model.AssignDepartmentRequest{DeptID: cf.f.mangalorePWD.ID})
	assert.ErrorIs(t, err, ErrJurisdictionMismatch)

	moved, err := cf.svc.AssignWard(ctx, cf.admin, c.ID, cf.f.orphanWard.ID)
	require.NoError(t, err)
	assert.Equal(t, cf.f.orphanWard.ID, *moved.WardID)

	_, err = cf.svc.AssignDepartment(ctx, cf.ward, c.ID, model.AssignDepartmentRequest{DeptID: cf.f.putturPWD.ID})
	assert.ErrorIs(t, err, ErrNoParentBody)
}

func TestMarkDuplicate(t *testing.T) {
	cf := newComplaintFixture()
	ctx := context.Background()
	parent := cf.create(t)
	child := cf.create(t)
	other := cf.create(t)

	_, err := cf.svc.MarkDuplicate(ctx, cf.citizen, child.ID, parent.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = cf.svc.MarkDuplicate(ctx, cf.moderator, child.ID, child.ID)
	assert.ErrorIs(t, err, ErrSelfDuplicate)

	marked, err := cf.svc.MarkDuplicate(ctx, cf.moderator, child.ID, parent.ID)
	require.NoError(t, err)
	assert.True(t, marked.IsDuplicate)
	assert.Equal(t, parent.ID, *marked.ParentComplaintID)

	storedParent, err := cf.store.FindByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, storedParent.DuplicateCount)

	_, err = cf.svc.MarkDuplicate(ctx, cf.moderator, child.ID, other.ID)
	assert.ErrorIs(t, err, ErrAlreadyDuplicate)

	_, err = cf.svc.MarkDuplicate(ctx, cf.moderator, other.ID, child.ID)
	assert.ErrorIs(t, err, ErrParentIsDuplicate)

	_, err = cf.svc.MarkDuplicate(ctx, cf.moderator, parent.ID, other.ID)
	assert.ErrorIs(t, err, ErrHasDuplicates)
	storedParent, err = cf.store.FindByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.False(t, storedParent.IsDuplicate)

	_, err = cf.svc.MarkDuplicate(ctx, cf.moderator, other.ID, uuid.New())
	assert.ErrorIs(t, err, ErrComplaintNotFound)
}

func TestDuplicatesAndQueue(t *testing.T) {
	cf := newComplaintFixture()
	ctx := context.Background()
	first := cf.create(t)
	second := cf.create(t)

	resp, err := cf.svc.Duplicates(ctx, cf.moderator, first.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultDuplicateRadiusMeters, resp.RadiusMeters)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, second.ID, resp.Duplicates[0].Complaint.ID)

	_, err = cf.svc.Duplicates(ctx, cf.citizen, first.ID, 0)
	assert.ErrorIs(t, err, ErrAccessDenied)

	noLocation, err := cf.svc.Create(ctx, cf.citizen, model.CreateComplaintRequest{ConstituencyID: uuid.New(), Title: "No GPS", Category: "water"})
	require.NoError(t, err)
	_, err = cf.svc.Duplicates(ctx, cf.moderator, noLocation.ID, 0)
	assert.ErrorIs(t, err, ErrNoLocation)

	pos, err := cf.svc.Queue(ctx, cf.citizen, noLocation.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos.Position)
	assert.Equal(t, 1, pos.Total)
}

func TestRescoreKeepsSLAAnchoredToCreation(t *testing.T) {
	cf := newComplaintFixture()
	ctx := context.Background()
	c := cf.create(t)

	stored := cf.store.complaints[c.ID]
	stored.Description = "Gas leak next to the school"
	stored.CreatedAt = complaintClock.AddDate(0, 0, -2)
	cf.store.complaints[c.ID] = stored

	_, err := cf.svc.Rescore(ctx, cf.ward, c.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)

	urgent := metrics.PriorityAssessments.WithLabelValues(string(model.PriorityUrgent))
	before := testutil.ToFloat64(urgent)

	rescored, err := cf.svc.Rescore(ctx, cf.admin, c.ID)
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(urgent))
	assert.Equal(t, model.PriorityUrgent, rescored.Priority)
	assert.True(t, rescored.IsEmergency)
	assert.Equal(t, stored.CreatedAt.AddDate(0, 0, 3), *rescored.SLADueAt)
}

func TestListScopesByRole(t *testing.T) {
	cf := newComplaintFixture()
	ctx := context.Background()

	first := cf.create(t)
	second := cf.create(t)
	_, err := cf.svc.AddInternalNote(ctx, cf.admin, first.ID, "Check contractor bill")
	require.NoError(t, err)

	other := model.Principal{UserID: uuid.New(), Name: "Ravi", Role: model.RoleCitizen}
	_, err = cf.svc.Create(ctx, other, model.CreateComplaintRequest{
		ConstituencyID: uuid.New(),
		Title:          "Streetlight off",
		Description:    "Dark lane",
		Category:       "electricity",
	})
	require.NoError(t, err)

	t.Run("citizen sees own without internal notes", func(t *testing.T) {
		resp, err := cf.svc.List(ctx, cf.citizen, model.ListComplaintsRequest{})
		require.NoError(t, err)
		assert.Equal(t, 2, resp.Total)
		assert.Equal(t, defaultPageSize, resp.Limit)
		for _, c := range resp.Complaints {
			assert.Empty(t, c.InternalNotes)
		}
	})

	t.Run("officials filter freely", func(t *testing.T) {
		resp, err := cf.svc.List(ctx, cf.moderator, model.ListComplaintsRequest{Category: "roads", Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, resp.Total)
		require.Len(t, resp.Complaints, 1)
		assert.Equal(t, first.ID, resp.Complaints[0].ID)

		resp, err = cf.svc.List(ctx, cf.moderator, model.ListComplaintsRequest{Category: "roads", Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, resp.Complaints, 1)
		assert.Equal(t, second.ID, resp.Complaints[0].ID)
	})

	t.Run("department staff need a department", func(t *testing.T) {
		noDept := cf.head
		noDept.DepartmentID = nil
		_, err := cf.svc.List(ctx, noDept, model.ListComplaintsRequest{})
		assert.ErrorIs(t, err, ErrNoDepartment)

		resp, err := cf.svc.List(ctx, cf.head, model.ListComplaintsRequest{Limit: 500})
		require.NoError(t, err)
		assert.Equal(t, 0, resp.Total)
		assert.Equal(t, maxPageSize, resp.Limit)
	})
}

func TestDepartmentStaffScopedToTheirDepartment(t *testing.T) {
	cf := newComplaintFixture()
	ctx := context.Background()
	c := cf.create(t)

	waterOfficer := &model.Officer{ID: uuid.New(), Name: "K. Rai", Role: model.RoleDepartmentOfficer, DepartmentID: &cf.f.kabakaWater.ID}
	cf.f.data.officers[waterOfficer.ID] = waterOfficer
	otherHead := model.Principal{UserID: uuid.New(), Name: "Water Head", Role: model.RoleDepartmentHead, DepartmentID: &cf.f.kabakaWater.ID}
	otherOfficer := model.Principal{UserID: waterOfficer.ID, Name: waterOfficer.Name, Role: model.RoleDepartmentOfficer, DepartmentID: &cf.f.kabakaWater.ID}

	t.Run("officer assignment waits for department routing", func(t *testing.T) {
		_, err := cf.svc.AssignOfficer(ctx, cf.head, c.ID, cf.f.officer.ID)
		assert.ErrorIs(t, err, ErrAccessDenied)

		_, err = cf.svc.AssignOfficer(ctx, cf.admin, c.ID, cf.f.officer.ID)
		assert.ErrorIs(t, err, ErrNotWithDepartment)

		stored, err := cf.store.FindByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.AssignedTo)
	})

	_, err := cf.svc.AssignDepartment(ctx, cf.ward, c.ID, model.AssignDepartmentRequest{DeptID: cf.f.putturPWD.ID})
	require.NoError(t, err)
	_, err = cf.svc.UpdateStatus(ctx, cf.moderator, c.ID, model.UpdateStatusRequest{Status: model.StatusAssigned})
	require.NoError(t, err)

	t.Run("other department is locked out", func(t *testing.T) {
		_, err := cf.svc.Get(ctx, otherOfficer, c.ID)
		assert.ErrorIs(t, err, ErrAccessDenied)

		_, err = cf.svc.UpdateStatus(ctx, otherOfficer, c.ID, model.UpdateStatusRequest{Status: model.StatusInProgress})
		assert.ErrorIs(t, err, ErrAccessDenied)

		_, err = cf.svc.AssignOfficer(ctx, otherHead, c.ID, waterOfficer.ID)
		assert.ErrorIs(t, err, ErrAccessDenied)

		_, err = cf.svc.AddInternalNote(ctx, otherOfficer, c.ID, "not ours")
		assert.ErrorIs(t, err, ErrAccessDenied)

		noDept := cf.officer
		noDept.DepartmentID = nil
		_, err = cf.svc.Get(ctx, noDept, c.ID)
		assert.ErrorIs(t, err, ErrNoDepartment)
	})

	t.Run("officer must belong to the department", func(t *testing.T) {
		_, err := cf.svc.AssignOfficer(ctx, cf.admin, c.ID, waterOfficer.ID)
		assert.ErrorIs(t, err, ErrOfficerOutsideDepartment)
	})

	t.Run("own department proceeds", func(t *testing.T) {
		_, err := cf.svc.AssignOfficer(ctx, cf.head, c.ID, cf.f.officer.ID)
		require.NoError(t, err)

		updated, err := cf.svc.UpdateStatus(ctx, cf.officer, c.ID, model.UpdateStatusRequest{Status: model.StatusInProgress})
		require.NoError(t, err)
		assert.Equal(t, model.StatusInProgress, updated.Status)
		assert.Equal(t, cf.f.officer.ID, *updated.AssignedTo)
	})
}
