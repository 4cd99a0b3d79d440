package model

import "github.com/google/uuid"

// ParentKind is the local body a ward or department belongs to.
type ParentKind string

const (
	ParentGramPanchayat   ParentKind = "gram_panchayat"
	ParentTalukPanchayat  ParentKind = "taluk_panchayat"
	ParentCityCorporation ParentKind = "city_corporation"
)

// Label is the human name used in routing errors.
func (k ParentKind) Label() string {
	switch k {
	case ParentGramPanchayat:
		return "gram panchayat"
	case ParentTalukPanchayat:
		return "taluk panchayat"
	case ParentCityCorporation:
		return "city corporation"
	}
	return string(k)
}

type ParentBody struct {
	Kind ParentKind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
}

type Ward struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	WardType          ParentKind `json:"ward_type"`
	ConstituencyID    uuid.UUID  `json:"constituency_id"`
	GramPanchayatID   *uuid.UUID `json:"gram_panchayat_id,omitempty"`
	TalukPanchayatID  *uuid.UUID `json:"taluk_panchayat_id,omitempty"`
	CityCorporationID *uuid.UUID `json:"city_corporation_id,omitempty"`
}

// ParentBody returns the single body the ward belongs to, checked in
// gram, taluk, city order. ok is false when none is set.
func (w *Ward) ParentBody() (ParentBody, bool) {
	switch {
	case w.GramPanchayatID != nil:
		return ParentBody{Kind: ParentGramPanchayat, ID: *w.GramPanchayatID}, true
	case w.TalukPanchayatID != nil:
		return ParentBody{Kind: ParentTalukPanchayat, ID: *w.TalukPanchayatID}, true
	case w.CityCorporationID != nil:
		return ParentBody{Kind: ParentCityCorporation, ID: *w.CityCorporationID}, true
	}
	return ParentBody{}, false
}

type Department struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	ConstituencyID    uuid.UUID  `json:"constituency_id"`
	GramPanchayatID   *uuid.UUID `json:"gram_panchayat_id,omitempty"`
	TalukPanchayatID  *uuid.UUID `json:"taluk_panchayat_id,omitempty"`
	CityCorporationID *uuid.UUID `json:"city_corporation_id,omitempty"`
}

// ParentID returns the department's id for the given body kind, or nil.
func (d *Department) ParentID(kind ParentKind) *uuid.UUID {
	switch kind {
	case ParentGramPanchayat:
		return d.GramPanchayatID
	case ParentTalukPanchayat:
		return d.TalukPanchayatID
	case ParentCityCorporation:
		return d.CityCorporationID
	}
	return nil
}

// Serves reports whether the department is scoped to the given body.
func (d *Department) Serves(body ParentBody) bool {
	id := d.ParentID(body.Kind)
	return id != nil && *id == body.ID
}

type Officer struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Role         Role       `json:"role"`
	DepartmentID *uuid.UUID `json:"department_id,omitempty"`
}
