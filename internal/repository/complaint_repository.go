package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"janasamparka/internal/geo"
	"janasamparka/internal/model"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConcurrentUpdate = errors.New("complaint was modified concurrently")
)

// Event is a domain event written to the outbox in the same transaction as
// the complaint write.
type Event struct {
	RoutingKey string
	Payload    interface{}
}

// Change carries the side records of a complaint write.
type Change struct {
	StatusLog *model.StatusLog
	Events    []Event
	// IncrementDuplicateCount bumps duplicate_count on this complaint.
	IncrementDuplicateCount *uuid.UUID
}

type NearbyQuery struct {
	Category  string
	Center    geo.Point
	Box       geo.Box
	ExcludeID uuid.UUID
	Statuses  []model.ComplaintStatus
	Limit     int
}

type QueueQuery struct {
	ConstituencyID uuid.UUID
	DepartmentID   *uuid.UUID
	Score          float64
	Statuses       []model.ComplaintStatus
}

// ComplaintQuery filters a complaint listing. Nil and empty fields do not
// filter.
type ComplaintQuery struct {
	CitizenID      *uuid.UUID
	ConstituencyID *uuid.UUID
	DeptID         *uuid.UUID
	WardID         *uuid.UUID
	Status         model.ComplaintStatus
	Category       string
	Search         string
	ByPriority     bool
	Limit          int
	Offset         int
}

const complaintColumns = `
	id, constituency_id, citizen_id, title, description, category, location_description,
	lat, lng, status, priority, assignment_type, ward_id, dept_id, ward_officer_id, assigned_to,
	priority_score, is_emergency, affected_population_estimate, sla_due_at, is_duplicate,
	parent_complaint_id, duplicate_count, public_notes, internal_notes, version, created_at, updated_at`

type ComplaintRepository struct {
	db     *sql.DB
	outbox *OutboxRepository
}

func NewComplaintRepository(db *sql.DB, outbox *OutboxRepository) *ComplaintRepository {
	return &ComplaintRepository{db: db, outbox: outbox}
}

// Create inserts a complaint at version 1 together with its initial status
// log and events.
func (r *ComplaintRepository) Create(ctx context.Context, c *model.Complaint, change Change) error {
	c.Version = 1
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO complaints (` + complaintColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
				$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
		`
		_, err := tx.ExecContext(ctx, query,
			c.ID,
			c.ConstituencyID,
			c.CitizenID,
			c.Title,
			c.Description,
			c.Category,
			c.LocationDescription,
			c.Lat,
			c.Lng,
			c.Status,
			c.Priority,
			c.AssignmentType,
			c.WardID,
			c.DeptID,
			c.WardOfficerID,
			c.AssignedTo,
			c.PriorityScore,
			c.IsEmergency,
			c.AffectedPopulationEstimate,
			c.SLADueAt,
			c.IsDuplicate,
			c.ParentComplaintID,
			c.DuplicateCount,
			c.PublicNotes,
			c.InternalNotes,
			c.Version,
			c.CreatedAt,
			c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert complaint: %w", err)
		}
		return r.applyChange(ctx, tx, change)
	})
}

// Update writes every mutable field guarded by the version the caller read.
// On success c.Version is advanced. A stale version yields
// ErrConcurrentUpdate.
func (r *ComplaintRepository) Update(ctx context.Context, c *model.Complaint, change Change) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE complaints SET
				title = $3, description = $4, category = $5, location_description = $6,
				lat = $7, lng = $8, status = $9, priority = $10, assignment_type = $11,
				ward_id = $12, dept_id = $13, ward_officer_id = $14, assigned_to = $15,
				priority_score = $16, is_emergency = $17, affected_population_estimate = $18,
				sla_due_at = $19, is_duplicate = $20, parent_complaint_id = $21,
				duplicate_count = $22, public_notes = $23, internal_notes = $24,
				version = version + 1, updated_at = NOW()
			WHERE id = $1 AND version = $2
			RETURNING version, updated_at
		`
		var version int
		var updatedAt time.Time
		err := tx.QueryRowContext(ctx, query,
			c.ID,
			c.Version,
			c.Title,
			c.Description,
			c.Category,
			c.LocationDescription,
			c.Lat,
			c.Lng,
			c.Status,
			c.Priority,
			c.AssignmentType,
			c.WardID,
			c.DeptID,
			c.WardOfficerID,
			c.AssignedTo,
			c.PriorityScore,
			c.IsEmergency,
			c.AffectedPopulationEstimate,
			c.SLADueAt,
			c.IsDuplicate,
			c.ParentComplaintID,
			c.DuplicateCount,
			c.PublicNotes,
			c.InternalNotes,
		).Scan(&version, &updatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM complaints WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConcurrentUpdate
		}
		if err != nil {
			return fmt.Errorf("update complaint: %w", err)
		}

		if err := r.applyChange(ctx, tx, change); err != nil {
			return err
		}

		c.Version = version
		c.UpdatedAt = updatedAt
		return nil
	})
}

func (r *ComplaintRepository) applyChange(ctx context.Context, tx *sql.Tx, change Change) error {
	if change.IncrementDuplicateCount != nil {
		result, err := tx.ExecContext(ctx, `
			UPDATE complaints
			SET duplicate_count = duplicate_count + 1, version = version + 1, updated_at = NOW()
			WHERE id = $1
		`, *change.IncrementDuplicateCount)
		if err != nil {
			return fmt.Errorf("increment duplicate count: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrNotFound
		}
	}

	if l := change.StatusLog; l != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO status_logs (id, complaint_id, old_status, new_status, changed_by, note, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, l.ID, l.ComplaintID, l.OldStatus, l.NewStatus, l.ChangedBy, l.Note, l.Timestamp)
		if err != nil {
			return fmt.Errorf("insert status log: %w", err)
		}
	}

	for _, e := range change.Events {
		if err := r.outbox.CreateInTransaction(ctx, tx, e.RoutingKey, e.Payload); err != nil {
			return fmt.Errorf("outbox %s: %w", e.RoutingKey, err)
		}
	}
	return nil
}

func (r *ComplaintRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Complaint, error) {
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id = $1`
	c, err := scanComplaint(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// FindByIDs returns the complaints that exist, ordered by creation time.
func (r *ComplaintRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Complaint, error) {
	if len(ids) == 0 {
		return []model.Complaint{}, nil
	}
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE id = ANY($1::uuid[]) ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(uuidStrings(ids)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanComplaints(rows)
}

// FindNearby returns complaints inside the bounding box matching the query,
// closest to Center first so the limit keeps the nearest rows. Exact
// distance filtering is left to the caller.
func (r *ComplaintRepository) FindNearby(ctx context.Context, q NearbyQuery) ([]model.Complaint, error) {
	query := `
		SELECT ` + complaintColumns + `
		FROM complaints
		WHERE LOWER(category) = LOWER($1)
			AND is_duplicate = FALSE
			AND id <> $2
			AND status = ANY($3)
			AND lat BETWEEN $4 AND $5
			AND lng BETWEEN $6 AND $7
		ORDER BY (lat - $8) * (lat - $8) + ((lng - $9) * $10) * ((lng - $9) * $10), created_at ASC
		LIMIT $11
	`
	rows, err := r.db.QueryContext(ctx, query,
		q.Category,
		q.ExcludeID,
		pq.Array(statusStrings(q.Statuses)),
		q.Box.MinLat, q.Box.MaxLat,
		q.Box.MinLng, q.Box.MaxLng,
		q.Center.Lat, q.Center.Lng, geo.LngScale(q.Center.Lat),
		q.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanComplaints(rows)
}

// FindClusterCandidates returns geotagged, non-duplicate complaints that are
// submitted or assigned, oldest first.
func (r *ComplaintRepository) FindClusterCandidates(ctx context.Context, f model.ClusterFilter) ([]model.Complaint, error) {
	query := `
		SELECT ` + complaintColumns + `
		FROM complaints
		WHERE status IN ('submitted', 'assigned')
			AND is_duplicate = FALSE
			AND lat IS NOT NULL AND lng IS NOT NULL
	`
	args := []interface{}{}
	argIndex := 1

	if f.ConstituencyID != nil {
		query += fmt.Sprintf(" AND constituency_id = $%d", argIndex)
		args = append(args, *f.ConstituencyID)
		argIndex++
	}
	if f.Category != "" {
		query += fmt.Sprintf(" AND LOWER(category) = LOWER($%d)", argIndex)
		args = append(args, f.Category)
		argIndex++
	}

	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanComplaints(rows)
}

// List returns one page of complaints matching q and the total number of
// matches. Pages are newest first, or highest priority first when
// q.ByPriority is set.
func (r *ComplaintRepository) List(ctx context.Context, q ComplaintQuery) ([]model.Complaint, int, error) {
	where := " WHERE TRUE"
	args := []interface{}{}
	argIndex := 1

	add := func(clause string, v interface{}) {
		where += fmt.Sprintf(clause, argIndex)
		args = append(args, v)
		argIndex++
	}
	if q.CitizenID != nil {
		add(" AND citizen_id = $%d", *q.CitizenID)
	}
	if q.ConstituencyID != nil {
		add(" AND constituency_id = $%d", *q.ConstituencyID)
	}
	if q.DeptID != nil {
		add(" AND dept_id = $%d", *q.DeptID)
	}
	if q.WardID != nil {
		add(" AND ward_id = $%d", *q.WardID)
	}
	if q.Status != "" {
		add(" AND status = $%d", string(q.Status))
	}
	if q.Category != "" {
		add(" AND LOWER(category) = LOWER($%d)", q.Category)
	}
	if q.Search != "" {
		where += fmt.Sprintf(" AND (LOWER(title) LIKE LOWER($%d) OR LOWER(description) LIKE LOWER($%d))", argIndex, argIndex)
		args = append(args, "%"+q.Search+"%")
		argIndex++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM complaints`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := " ORDER BY created_at DESC, id ASC"
	if q.ByPriority {
		order = " ORDER BY priority_score DESC NULLS LAST, created_at ASC, id ASC"
	}
	query := `SELECT ` + complaintColumns + ` FROM complaints` + where + order +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, q.Limit, q.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	complaints, err := scanComplaints(rows)
	if err != nil {
		return nil, 0, err
	}
	return complaints, total, nil
}

// CountQueue counts open complaints in scope and how many of them outrank
// the given score.
func (r *ComplaintRepository) CountQueue(ctx context.Context, q QueueQuery) (int, int, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE COALESCE(priority_score, 0) > $2),
			COUNT(*)
		FROM complaints
		WHERE constituency_id = $1 AND status = ANY($3)
	`
	args := []interface{}{q.ConstituencyID, q.Score, pq.Array(statusStrings(q.Statuses))}
	if q.DepartmentID != nil {
		query += " AND dept_id = $4"
		args = append(args, *q.DepartmentID)
	}

	var ahead, total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&ahead, &total); err != nil {
		return 0, 0, err
	}
	return ahead, total, nil
}

func (r *ComplaintRepository) StatusHistory(ctx context.Context, complaintID uuid.UUID) ([]model.StatusLog, error) {
	query := `
		SELECT id, complaint_id, old_status, new_status, changed_by, note, timestamp
		FROM status_logs
		WHERE complaint_id = $1
		ORDER BY timestamp ASC
	`
	rows, err := r.db.QueryContext(ctx, query, complaintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []model.StatusLog{}
	for rows.Next() {
		var l model.StatusLog
		var oldStatus sql.NullString
		var changedBy uuid.NullUUID
		var note sql.NullString
		if err := rows.Scan(&l.ID, &l.ComplaintID, &oldStatus, &l.NewStatus, &changedBy, &note, &l.Timestamp); err != nil {
			return nil, err
		}
		if oldStatus.Valid {
			s := model.ComplaintStatus(oldStatus.String)
			l.OldStatus = &s
		}
		if changedBy.Valid {
			l.ChangedBy = &changedBy.UUID
		}
		if note.Valid {
			l.Note = &note.String
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *ComplaintRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Helper to scan one complaint row in complaintColumns order.
func scanComplaint(row rowScanner) (*model.Complaint, error) {
	c := &model.Complaint{}
	var citizenID, wardID, deptID, wardOfficerID, assignedTo, parentID uuid.NullUUID
	var locationDescription sql.NullString
	var lat, lng, priorityScore sql.NullFloat64
	var slaDueAt sql.NullTime

	err := row.Scan(
		&c.ID,
		&c.ConstituencyID,
		&citizenID,
		&c.Title,
		&c.Description,
		&c.Category,
		&locationDescription,
		&lat,
		&lng,
		&c.Status,
		&c.Priority,
		&c.AssignmentType,
		&wardID,
		&deptID,
		&wardOfficerID,
		&assignedTo,
		&priorityScore,
		&c.IsEmergency,
		&c.AffectedPopulationEstimate,
		&slaDueAt,
		&c.IsDuplicate,
		&parentID,
		&c.DuplicateCount,
		&c.PublicNotes,
		&c.InternalNotes,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.CitizenID = nullUUID(citizenID)
	c.WardID = nullUUID(wardID)
	c.DeptID = nullUUID(deptID)
	c.WardOfficerID = nullUUID(wardOfficerID)
	c.AssignedTo = nullUUID(assignedTo)
	c.ParentComplaintID = nullUUID(parentID)
	if locationDescription.Valid {
		c.LocationDescription = &locationDescription.String
	}
	if lat.Valid {
		c.Lat = &lat.Float64
	}
	if lng.Valid {
		c.Lng = &lng.Float64
	}
	if priorityScore.Valid {
		c.PriorityScore = &priorityScore.Float64
	}
	if slaDueAt.Valid {
		c.SLADueAt = &slaDueAt.Time
	}

	return c, nil
}

func scanComplaints(rows *sql.Rows) ([]model.Complaint, error) {
	complaints := []model.Complaint{}
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		complaints = append(complaints, *c)
	}
	return complaints, rows.Err()
}

func nullUUID(n uuid.NullUUID) *uuid.UUID {
	if !n.Valid {
		return nil
	}
	id := n.UUID
	return &id
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func statusStrings(statuses []model.ComplaintStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
