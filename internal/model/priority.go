package model

import (
	"time"

	"github.com/google/uuid"
)

// PriorityFactors are the per-dimension scores in [0,1] behind a
// priority assessment.
type PriorityFactors struct {
	Severity      float64 `json:"severity"`
	Population    float64 `json:"population"`
	Urgency       float64 `json:"urgency"`
	Recurrence    float64 `json:"recurrence"`
	Vulnerability float64 `json:"vulnerability"`
}

type PriorityAssessment struct {
	PriorityScore              float64         `json:"priority_score"`
	IsEmergency                bool            `json:"is_emergency"`
	AffectedPopulationEstimate int             `json:"affected_population_estimate"`
	PriorityLevel              Priority        `json:"priority_level"`
	Factors                    PriorityFactors `json:"factors"`
}

type SLA struct {
	Category           string    `json:"category"`
	PriorityLevel      string    `json:"priority_level"`
	SLADays            int       `json:"sla_days"`
	ExpectedResolution string    `json:"expected_resolution"`
	SuccessRate        float64   `json:"success_rate"`
	DueDate            time.Time `json:"due_date"`
}

type QueuePosition struct {
	ComplaintID uuid.UUID `json:"complaint_id"`
	Position    int       `json:"position"`
	Total       int       `json:"total"`
	Percentile  float64   `json:"percentile"`
}

type NearbyDuplicate struct {
	Complaint      Complaint `json:"complaint"`
	DistanceMeters float64   `json:"distance_meters"`
}

type DuplicateListResponse struct {
	Duplicates   []NearbyDuplicate `json:"duplicates"`
	RadiusMeters float64           `json:"radius_meters"`
	Total        int               `json:"total"`
}

type PriorityPreviewResponse struct {
	Assessment PriorityAssessment `json:"assessment"`
	SLA        SLA                `json:"sla"`
}
