package service

import (
	"context"

	"janasamparka/internal/model"
	"janasamparka/internal/repository"

	"github.com/google/uuid"
)

// ComplaintStore is the persistence the complaint services need.
// *repository.ComplaintRepository implements it.
type ComplaintStore interface {
	Create(ctx context.Context, complaint *model.Complaint, change repository.Change) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Complaint, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Complaint, error)
	Update(ctx context.Context, complaint *model.Complaint, change repository.Change) error
	List(ctx context.Context, q repository.ComplaintQuery) ([]model.Complaint, int, error)
	FindNearby(ctx context.Context, q repository.NearbyQuery) ([]model.Complaint, error)
	FindClusterCandidates(ctx context.Context, filter model.ClusterFilter) ([]model.Complaint, error)
	CountQueue(ctx context.Context, q repository.QueueQuery) (ahead int, total int, err error)
	StatusHistory(ctx context.Context, complaintID uuid.UUID) ([]model.StatusLog, error)
}

// JurisdictionStore resolves wards, departments and officers.
// Lookups return repository.ErrNotFound on a miss.
type JurisdictionStore interface {
	FindWard(ctx context.Context, id uuid.UUID) (*model.Ward, error)
	FindDepartment(ctx context.Context, id uuid.UUID) (*model.Department, error)
	FindOfficer(ctx context.Context, id uuid.UUID) (*model.Officer, error)
}
