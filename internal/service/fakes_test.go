package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"janasamparka/internal/geo"
	"janasamparka/internal/model"
	"janasamparka/internal/repository"

	"github.com/google/uuid"
)

type fakeComplaintStore struct {
	mu         sync.Mutex
	complaints map[uuid.UUID]model.Complaint
	order      []uuid.UUID
	history    map[uuid.UUID][]model.StatusLog
	events     []repository.Event
	nearbyErr  error
	lastNearby repository.NearbyQuery
}

func newFakeComplaintStore(complaints ...model.Complaint) *fakeComplaintStore {
	s := &fakeComplaintStore{
		complaints: map[uuid.UUID]model.Complaint{},
		history:    map[uuid.UUID][]model.StatusLog{},
	}
	for _, c := range complaints {
		s.put(c)
	}
	return s
}

func (s *fakeComplaintStore) put(c model.Complaint) {
	if _, ok := s.complaints[c.ID]; !ok {
		s.order = append(s.order, c.ID)
	}
	s.complaints[c.ID] = c
}

func (s *fakeComplaintStore) apply(change repository.Change) {
	if change.StatusLog != nil {
		s.history[change.StatusLog.ComplaintID] = append(s.history[change.StatusLog.ComplaintID], *change.StatusLog)
	}
	if id := change.IncrementDuplicateCount; id != nil {
		parent := s.complaints[*id]
		parent.DuplicateCount++
		s.complaints[*id] = parent
	}
	s.events = append(s.events, change.Events...)
}

func (s *fakeComplaintStore) Create(_ context.Context, c *model.Complaint, change repository.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Version = 1
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.UpdatedAt = c.CreatedAt
	s.put(*c)
	s.apply(change)
	return nil
}

func (s *fakeComplaintStore) FindByID(_ context.Context, id uuid.UUID) (*model.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.complaints[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (s *fakeComplaintStore) FindByIDs(_ context.Context, ids []uuid.UUID) ([]model.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Complaint
	for _, id := range ids {
		if c, ok := s.complaints[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeComplaintStore) Update(_ context.Context, c *model.Complaint, change repository.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.complaints[c.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != c.Version {
		return repository.ErrConcurrentUpdate
	}
	c.Version++
	c.UpdatedAt = time.Now()
	s.put(*c)
	s.apply(change)
	return nil
}

func (s *fakeComplaintStore) List(_ context.Context, q repository.ComplaintQuery) ([]model.Complaint, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []model.Complaint
	for _, id := range s.order {
		c := s.complaints[id]
		switch {
		case q.CitizenID != nil && (c.CitizenID == nil || *c.CitizenID != *q.CitizenID):
			continue
		case q.ConstituencyID != nil && c.ConstituencyID != *q.ConstituencyID:
			continue
		case q.DeptID != nil && (c.DeptID == nil || *c.DeptID != *q.DeptID):
			continue
		case q.WardID != nil && (c.WardID == nil || *c.WardID != *q.WardID):
			continue
		case q.Status != "" && c.Status != q.Status:
			continue
		case q.Category != "" && c.Category != q.Category:
			continue
		}
		matched = append(matched, c)
	}
	if q.ByPriority {
		sort.SliceStable(matched, func(i, j int) bool {
			return scoreOf(matched[i]) > scoreOf(matched[j])
		})
	}
	total := len(matched)
	if q.Offset >= total {
		return []model.Complaint{}, total, nil
	}
	end := min(total, q.Offset+q.Limit)
	return matched[q.Offset:end], total, nil
}

func scoreOf(c model.Complaint) float64 {
	if c.PriorityScore == nil {
		return 0
	}
	return *c.PriorityScore
}

func (s *fakeComplaintStore) FindNearby(_ context.Context, q repository.NearbyQuery) ([]model.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastNearby = q
	if s.nearbyErr != nil {
		return nil, s.nearbyErr
	}
	var out []model.Complaint
	for _, id := range s.order {
		c := s.complaints[id]
		if c.ID == q.ExcludeID || !c.HasLocation() {
			continue
		}
		if !q.Box.Contains(geo.Point{Lat: *c.Lat, Lng: *c.Lng}) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return geo.Distance(q.Center, geo.Point{Lat: *out[i].Lat, Lng: *out[i].Lng}) <
			geo.Distance(q.Center, geo.Point{Lat: *out[j].Lat, Lng: *out[j].Lng})
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *fakeComplaintStore) FindClusterCandidates(_ context.Context, f model.ClusterFilter) ([]model.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Complaint
	for _, id := range s.order {
		c := s.complaints[id]
		if f.ConstituencyID != nil && c.ConstituencyID != *f.ConstituencyID {
			continue
		}
		if f.Category != "" && c.Category != f.Category {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeComplaintStore) CountQueue(_ context.Context, q repository.QueueQuery) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ahead, total := 0, 0
	for _, c := range s.complaints {
		if c.ConstituencyID != q.ConstituencyID || !c.Status.IsOpen() {
			continue
		}
		if q.DepartmentID != nil && (c.DeptID == nil || *c.DeptID != *q.DepartmentID) {
			continue
		}
		total++
		if c.PriorityScore != nil && *c.PriorityScore > q.Score {
			ahead++
		}
	}
	return ahead, total, nil
}

func (s *fakeComplaintStore) StatusHistory(_ context.Context, complaintID uuid.UUID) ([]model.StatusLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := append([]model.StatusLog(nil), s.history[complaintID]...)
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].Timestamp.Before(logs[j].Timestamp) })
	return logs, nil
}

func (s *fakeComplaintStore) routingKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, len(s.events))
	for i, e := range s.events {
		keys[i] = e.RoutingKey
	}
	return keys
}

type fakeJurisdictions struct {
	wards       map[uuid.UUID]*model.Ward
	departments map[uuid.UUID]*model.Department
	officers    map[uuid.UUID]*model.Officer
}

func newFakeJurisdictions() *fakeJurisdictions {
	return &fakeJurisdictions{
		wards:       map[uuid.UUID]*model.Ward{},
		departments: map[uuid.UUID]*model.Department{},
		officers:    map[uuid.UUID]*model.Officer{},
	}
}

func (f *fakeJurisdictions) FindWard(_ context.Context, id uuid.UUID) (*model.Ward, error) {
	if w, ok := f.wards[id]; ok {
		return w, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeJurisdictions) FindDepartment(_ context.Context, id uuid.UUID) (*model.Department, error) {
	if d, ok := f.departments[id]; ok {
		return d, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeJurisdictions) FindOfficer(_ context.Context, id uuid.UUID) (*model.Officer, error) {
	if o, ok := f.officers[id]; ok {
		return o, nil
	}
	return nil, repository.ErrNotFound
}

func ptr[T any](v T) *T {
	return &v
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
