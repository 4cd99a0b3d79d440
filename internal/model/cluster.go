package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CostEstimate is in rupees.
type CostEstimate struct {
	UnitCost          decimal.Decimal `json:"unit_cost"`
	IndividualCost    decimal.Decimal `json:"individual_cost"`
	BatchCost         decimal.Decimal `json:"batch_cost"`
	Savings           decimal.Decimal `json:"savings"`
	SavingsPercentage float64         `json:"savings_percentage"`
}

// ComplaintCluster is computed per request and never stored.
type ComplaintCluster struct {
	ClusterID      string       `json:"cluster_id"`
	Category       string       `json:"category"`
	ComplaintIDs   []uuid.UUID  `json:"complaint_ids"`
	CenterLat      float64      `json:"center_lat"`
	CenterLng      float64      `json:"center_lng"`
	RadiusMeters   float64      `json:"radius_meters"`
	ComplaintCount int          `json:"complaint_count"`
	Cost           CostEstimate `json:"cost_estimate"`
}

type ClusterFilter struct {
	ConstituencyID  *uuid.UUID
	Category        string
	MaxRadiusMeters float64
	MinClusterSize  int
}

type ProjectLocation struct {
	CenterLat    float64  `json:"center_lat"`
	CenterLng    float64  `json:"center_lng"`
	RadiusMeters float64  `json:"radius_meters"`
	Areas        []string `json:"areas,omitempty"`
}

type ProjectTimeline struct {
	EstimatedDays int `json:"estimated_days"`
}

type BatchProject struct {
	ClusterID      string          `json:"cluster_id"`
	ProjectName    string          `json:"project_name"`
	Category       string          `json:"category"`
	ComplaintCount int             `json:"complaint_count"`
	ComplaintIDs   []uuid.UUID     `json:"complaint_ids"`
	Titles         []string        `json:"complaint_titles"`
	Location       ProjectLocation `json:"location"`
	Cost           CostEstimate    `json:"cost_breakdown"`
	Timeline       ProjectTimeline `json:"timeline"`
	Benefits       []string        `json:"benefits"`
}

type ClusterSummary struct {
	TotalClusters         int             `json:"total_clusters"`
	TotalComplaints       int             `json:"total_complaints_clustered"`
	TotalIndividualCost   decimal.Decimal `json:"total_individual_cost"`
	TotalBatchCost        decimal.Decimal `json:"total_batch_cost"`
	TotalPotentialSavings decimal.Decimal `json:"total_potential_savings"`
}

type ClusterAnalysisResponse struct {
	Clusters []ComplaintCluster `json:"clusters"`
	Projects []BatchProject     `json:"projects"`
	Summary  ClusterSummary     `json:"summary"`
}
