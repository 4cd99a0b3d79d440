package repository

import (
	"context"
	"database/sql"
	"errors"

	"janasamparka/internal/model"

	"github.com/google/uuid"
)

// JurisdictionRepository reads wards, departments and officers. These are
// reference data maintained outside this service.
type JurisdictionRepository struct {
	db *sql.DB
}

func NewJurisdictionRepository(db *sql.DB) *JurisdictionRepository {
	return &JurisdictionRepository{db: db}
}

func (r *JurisdictionRepository) FindWard(ctx context.Context, id uuid.UUID) (*model.Ward, error) {
	query := `
		SELECT id, name, ward_type, constituency_id, gram_panchayat_id, taluk_panchayat_id, city_corporation_id
		FROM wards
		WHERE id = $1
	`
	w := &model.Ward{}
	var gp, tp, cc uuid.NullUUID
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&w.ID,
		&w.Name,
		&w.WardType,
		&w.ConstituencyID,
		&gp,
		&tp,
		&cc,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	w.GramPanchayatID = nullUUID(gp)
	w.TalukPanchayatID = nullUUID(tp)
	w.CityCorporationID = nullUUID(cc)
	return w, nil
}

func (r *JurisdictionRepository) FindDepartment(ctx context.Context, id uuid.UUID) (*model.Department, error) {
	query := `
		SELECT id, name, constituency_id, gram_panchayat_id, taluk_panchayat_id, city_corporation_id
		FROM departments
		WHERE id = $1
	`
	d := &model.Department{}
	var gp, tp, cc uuid.NullUUID
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID,
		&d.Name,
		&d.ConstituencyID,
		&gp,
		&tp,
		&cc,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	d.GramPanchayatID = nullUUID(gp)
	d.TalukPanchayatID = nullUUID(tp)
	d.CityCorporationID = nullUUID(cc)
	return d, nil
}

func (r *JurisdictionRepository) FindOfficer(ctx context.Context, id uuid.UUID) (*model.Officer, error) {
	query := `SELECT id, name, role, department_id FROM officers WHERE id = $1`
	o := &model.Officer{}
	var deptID uuid.NullUUID
	err := r.db.QueryRowContext(ctx, query, id).Scan(&o.ID, &o.Name, &o.Role, &deptID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	o.DepartmentID = nullUUID(deptID)
	return o, nil
}
