package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"janasamparka/internal/geo"
	"janasamparka/internal/metrics"
	"janasamparka/internal/model"

	"github.com/shopspring/decimal"
)

const (
	DefaultClusterRadiusMeters = 500.0
	DefaultMinClusterSize      = 3
	minProjectDays             = 7
	projectDaysPerComplaint    = 2
)

var ErrEmptyCluster = errors.New("none of the cluster's complaints exist")

var (
	batchCostFactor = decimal.RequireFromString("0.65")
	hundred         = decimal.NewFromInt(100)

	// Rupees per individually resolved complaint.
	unitCosts = map[string]decimal.Decimal{
		"roads":       decimal.NewFromInt(50000),
		"water":       decimal.NewFromInt(25000),
		"electricity": decimal.NewFromInt(15000),
		"sanitation":  decimal.NewFromInt(20000),
		"drainage":    decimal.NewFromInt(35000),
		"streetlight": decimal.NewFromInt(8000),
	}
	defaultUnitCost = decimal.NewFromInt(30000)

	projectNames = map[string]string{
		"roads":       "Road Repair and Resurfacing Project",
		"water":       "Water Supply Infrastructure Project",
		"electricity": "Electrical Infrastructure Upgrade",
		"sanitation":  "Sanitation Improvement Drive",
		"drainage":    "Drainage Network Rehabilitation",
		"streetlight": "Streetlight Restoration Project",
	}
)

type ClusteringService struct {
	complaints    ComplaintStore
	defaultRadius float64
	defaultSize   int
	now           func() time.Time
}

func NewClusteringService(complaints ComplaintStore) *ClusteringService {
	return &ClusteringService{
		complaints:    complaints,
		defaultRadius: DefaultClusterRadiusMeters,
		defaultSize:   DefaultMinClusterSize,
		now:           time.Now,
	}
}

// SetDefaults replaces the radius and minimum size used when a filter leaves
// them at zero. Non-positive values keep the current default.
func (s *ClusteringService) SetDefaults(radiusMeters float64, minSize int) {
	if radiusMeters > 0 {
		s.defaultRadius = radiusMeters
	}
	if minSize > 0 {
		s.defaultSize = minSize
	}
}

// FindComplaintClusters loads the clusterable complaints in scope and groups
// them. Zero radius or size in the filter fall back to the defaults.
func (s *ClusteringService) FindComplaintClusters(ctx context.Context, filter model.ClusterFilter) ([]model.ComplaintCluster, error) {
	filter = s.normalize(filter)

	candidates, err := s.complaints.FindClusterCandidates(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("load cluster candidates: %w", err)
	}
	return ClusterComplaints(candidates, filter.MaxRadiusMeters, filter.MinClusterSize), nil
}

// Analyze finds clusters and proposes a batch project for each.
func (s *ClusteringService) Analyze(ctx context.Context, filter model.ClusterFilter) (*model.ClusterAnalysisResponse, error) {
	start := s.now()
	defer func() {
		metrics.ClusterRunDuration.Observe(time.Since(start).Seconds())
	}()

	clusters, err := s.FindComplaintClusters(ctx, filter)
	if err != nil {
		return nil, err
	}
	metrics.ClustersFound.Observe(float64(len(clusters)))

	projects := make([]model.BatchProject, 0, len(clusters))
	for _, cluster := range clusters {
		project, err := s.SuggestBatchProject(ctx, cluster)
		if errors.Is(err, ErrEmptyCluster) {
			continue
		}
		if err != nil {
			return nil, err
		}
		projects = append(projects, *project)
	}

	return &model.ClusterAnalysisResponse{
		Clusters: clusters,
		Projects: projects,
		Summary:  SummarizeClusters(clusters),
	}, nil
}

// ClusterComplaints groups complaints greedily in input order. Each
// unconsumed complaint seeds a group and pulls in every other unconsumed
// complaint of the same category within maxRadiusMeters of the seed. Every
// member is consumed whether or not the group reaches minSize, so the
// result depends on input order and two members can be up to twice the
// radius apart.
func ClusterComplaints(complaints []model.Complaint, maxRadiusMeters float64, minSize int) []model.ComplaintCluster {
	eligible := make([]model.Complaint, 0, len(complaints))
	for _, c := range complaints {
		if clusterable(&c) {
			eligible = append(eligible, c)
		}
	}

	clusters := []model.ComplaintCluster{}
	consumed := make([]bool, len(eligible))

	for i := range eligible {
		if consumed[i] {
			continue
		}
		seed := &eligible[i]
		consumed[i] = true
		members := []*model.Complaint{seed}

		for j := range eligible {
			if consumed[j] {
				continue
			}
			other := &eligible[j]
			if !strings.EqualFold(other.Category, seed.Category) {
				continue
			}
			if geo.HaversineMeters(*seed.Lat, *seed.Lng, *other.Lat, *other.Lng) <= maxRadiusMeters {
				members = append(members, other)
				consumed[j] = true
			}
		}

		if len(members) >= minSize {
			clusters = append(clusters, buildCluster(len(clusters)+1, seed.Category, members))
		}
	}

	return clusters
}

func clusterable(c *model.Complaint) bool {
	if !c.HasLocation() || c.IsDuplicate {
		return false
	}
	return c.Status == model.StatusSubmitted || c.Status == model.StatusAssigned
}

func buildCluster(n int, category string, members []*model.Complaint) model.ComplaintCluster {
	points := make([]geo.Point, len(members))
	cluster := model.ComplaintCluster{
		ClusterID:      fmt.Sprintf("cluster-%d", n),
		Category:       strings.ToLower(category),
		ComplaintCount: len(members),
	}
	for i, m := range members {
		points[i] = geo.Point{Lat: *m.Lat, Lng: *m.Lng}
		cluster.ComplaintIDs = append(cluster.ComplaintIDs, m.ID)
	}

	center := geo.Centroid(points)
	radius := 0.0
	for _, p := range points {
		radius = max(radius, geo.Distance(center, p))
	}

	cluster.CenterLat = roundTo(center.Lat, 6)
	cluster.CenterLng = roundTo(center.Lng, 6)
	cluster.RadiusMeters = roundTo(radius, 1)
	cluster.Cost = EstimateClusterCost(cluster.Category, len(members))
	return cluster
}

// EstimateClusterCost prices resolving count complaints one by one against a
// single batch job at 65% of that cost.
func EstimateClusterCost(category string, count int) model.CostEstimate {
	unit, ok := unitCosts[strings.ToLower(category)]
	if !ok {
		unit = defaultUnitCost
	}

	individual := unit.Mul(decimal.NewFromInt(int64(count)))
	batch := individual.Mul(batchCostFactor).Round(2)
	savings := individual.Sub(batch)

	pct := 0.0
	if individual.IsPositive() {
		pct = savings.Div(individual).Mul(hundred).Round(1).InexactFloat64()
	}

	return model.CostEstimate{
		UnitCost:          unit,
		IndividualCost:    individual,
		BatchCost:         batch,
		Savings:           savings,
		SavingsPercentage: pct,
	}
}

// SuggestBatchProject turns a cluster into a project proposal from the
// current state of its member complaints.
func (s *ClusteringService) SuggestBatchProject(ctx context.Context, cluster model.ComplaintCluster) (*model.BatchProject, error) {
	members, err := s.complaints.FindByIDs(ctx, cluster.ComplaintIDs)
	if err != nil {
		return nil, fmt.Errorf("load cluster members: %w", err)
	}
	if len(members) == 0 {
		return nil, ErrEmptyCluster
	}

	project := &model.BatchProject{
		ClusterID:      cluster.ClusterID,
		ProjectName:    projectName(cluster.Category),
		Category:       cluster.Category,
		ComplaintCount: len(members),
		Location: model.ProjectLocation{
			CenterLat:    cluster.CenterLat,
			CenterLng:    cluster.CenterLng,
			RadiusMeters: cluster.RadiusMeters,
		},
		Cost: EstimateClusterCost(cluster.Category, len(members)),
		Timeline: model.ProjectTimeline{
			EstimatedDays: max(minProjectDays, len(members)*projectDaysPerComplaint),
		},
	}

	seenAreas := map[string]bool{}
	for _, m := range members {
		project.ComplaintIDs = append(project.ComplaintIDs, m.ID)
		project.Titles = append(project.Titles, m.Title)
		if area := strings.TrimSpace(m.LocationText()); area != "" && !seenAreas[strings.ToLower(area)] {
			seenAreas[strings.ToLower(area)] = true
			project.Location.Areas = append(project.Location.Areas, area)
		}
	}

	project.Benefits = []string{
		fmt.Sprintf("Resolves %d related complaints in a single work order", len(members)),
		fmt.Sprintf("Estimated saving of Rs. %s (%.1f%%) over individual repairs",
			project.Cost.Savings.StringFixed(2), project.Cost.SavingsPercentage),
		"One contractor mobilisation and shared material procurement",
		"Visible area-wide improvement instead of piecemeal fixes",
	}
	return project, nil
}

// SummarizeClusters totals an analysis run.
func SummarizeClusters(clusters []model.ComplaintCluster) model.ClusterSummary {
	summary := model.ClusterSummary{
		TotalClusters:         len(clusters),
		TotalIndividualCost:   decimal.Zero,
		TotalBatchCost:        decimal.Zero,
		TotalPotentialSavings: decimal.Zero,
	}
	for _, c := range clusters {
		summary.TotalComplaints += c.ComplaintCount
		summary.TotalIndividualCost = summary.TotalIndividualCost.Add(c.Cost.IndividualCost)
		summary.TotalBatchCost = summary.TotalBatchCost.Add(c.Cost.BatchCost)
		summary.TotalPotentialSavings = summary.TotalPotentialSavings.Add(c.Cost.Savings)
	}
	return summary
}

func projectName(category string) string {
	if name, ok := projectNames[strings.ToLower(category)]; ok {
		return name
	}
	if category == "" {
		return "Civic Improvement Project"
	}
	first, size := utf8.DecodeRuneInString(category)
	return string(unicode.ToUpper(first)) + strings.ToLower(category[size:]) + " Improvement Project"
}

func (s *ClusteringService) normalize(f model.ClusterFilter) model.ClusterFilter {
	if f.MaxRadiusMeters <= 0 {
		f.MaxRadiusMeters = s.defaultRadius
	}
	if f.MinClusterSize <= 0 {
		f.MinClusterSize = s.defaultSize
	}
	return f
}
