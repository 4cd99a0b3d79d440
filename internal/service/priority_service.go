package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"janasamparka/internal/geo"
	"janasamparka/internal/metrics"
	"janasamparka/internal/model"
	"janasamparka/internal/repository"

	"github.com/google/uuid"
)

const (
	weightSeverity      = 0.40
	weightPopulation    = 0.25
	weightUrgency       = 0.15
	weightRecurrence    = 0.10
	weightVulnerability = 0.10

	thresholdUrgent = 0.85
	thresholdHigh   = 0.65
	thresholdMedium = 0.35

	DefaultDuplicateRadiusMeters = 200.0
	maxDuplicateResults          = 20
	// Upper bound on rows pulled from the bounding box before the distance
	// filter runs.
	duplicateCandidateLimit = 200
)

var (
	emergencyKeywords = []string{
		"accident", "fire", "explosion", "gas leak", "electrocution", "electric shock",
		"live wire", "building collapse", "collapsed", "flooding", "drowning",
		"emergency", "short circuit", "landslide", "trapped",
	}

	severityCategories = []string{"health", "police", "fire", "water"}
	severityWords      = []string{"major", "serious", "severe", "critical", "big", "large", "huge"}

	highImpactKeywords = []string{
		"main road", "highway", "hospital", "school", "college", "market", "bus stand",
		"railway", "entire area", "whole area", "entire village", "whole village",
		"entire street", "colony", "all residents", "everyone",
	}

	urgencyCategories = []string{"health", "police", "fire", "gas", "electricity"}
	urgencyWords      = []string{"urgent", "asap", "immediately", "soon", "quickly", "right away"}

	recurrencePhrases = []string{
		"again", "repeated", "recurring", "still not fixed", "still pending",
		"multiple times", "many times", "every year", "keeps happening",
		"second time", "third time",
	}

	vulnerabilityTerms = []string{
		"elderly", "senior citizen", "children", "kids", "disabled", "handicapped",
		"wheelchair", "pregnant", "widow", "bpl", "below poverty line", "patients", "infant",
	}
)

// PriorityInput is the free text and location a complaint is scored on.
type PriorityInput struct {
	Title               string
	Description         string
	Category            string
	LocationDescription string
	Lat                 *float64
	Lng                 *float64
}

// PriorityInputFrom builds the scoring input from a stored complaint.
func PriorityInputFrom(c *model.Complaint) PriorityInput {
	return PriorityInput{
		Title:               c.Title,
		Description:         c.Description,
		Category:            c.Category,
		LocationDescription: c.LocationText(),
		Lat:                 c.Lat,
		Lng:                 c.Lng,
	}
}

// CalculatePriorityScore scores a complaint heuristically. It never fails;
// empty input yields a low priority with a population estimate of 1.
func CalculatePriorityScore(in PriorityInput) model.PriorityAssessment {
	text := strings.ToLower(strings.Join([]string{in.Title, in.Description, in.LocationDescription}, " "))
	category := strings.ToLower(strings.TrimSpace(in.Category))

	isEmergency := countMatches(text, emergencyKeywords) > 0

	severity := severityScore(text, category, isEmergency)
	population, estimate := populationScore(text, in.Lat != nil && in.Lng != nil)
	urgency := urgencyScore(text, category, isEmergency)
	recurrence := math.Min(1.0, float64(countMatches(text, recurrencePhrases))*0.3)
	vulnerability := math.Min(1.0, float64(countMatches(text, vulnerabilityTerms))*0.4)

	score := severity*weightSeverity +
		population*weightPopulation +
		urgency*weightUrgency +
		recurrence*weightRecurrence +
		vulnerability*weightVulnerability
	score = roundTo(math.Min(1.0, math.Max(0.0, score)), 4)

	return model.PriorityAssessment{
		PriorityScore:              score,
		IsEmergency:                isEmergency,
		AffectedPopulationEstimate: estimate,
		PriorityLevel:              priorityLevel(score, isEmergency),
		Factors: model.PriorityFactors{
			Severity:      roundTo(severity, 4),
			Population:    roundTo(population, 4),
			Urgency:       roundTo(urgency, 4),
			Recurrence:    roundTo(recurrence, 4),
			Vulnerability: roundTo(vulnerability, 4),
		},
	}
}

func severityScore(text, category string, isEmergency bool) float64 {
	if isEmergency {
		return 1.0
	}
	score := 0.0
	if contains(severityCategories, category) {
		score += 0.3
	}
	score += float64(countMatches(text, severityWords)) * 0.1
	return math.Min(1.0, score)
}

func populationScore(text string, hasCoordinates bool) (float64, int) {
	estimate := 1
	if countMatches(text, highImpactKeywords) > 0 {
		estimate = max(estimate, 100)
	}
	if containsWordPrefix(text, "hundred") {
		estimate = max(estimate, 300)
	}
	if containsWordPrefix(text, "thousand") {
		estimate = max(estimate, 1000)
	}
	// Geotagged complaints are assumed to come from a populated area.
	if hasCoordinates {
		estimate = max(estimate, 50)
	}
	return math.Min(1.0, float64(estimate)/1000.0), estimate
}

func urgencyScore(text, category string, isEmergency bool) float64 {
	if isEmergency {
		return 1.0
	}
	score := 0.0
	if contains(urgencyCategories, category) {
		score += 0.5
	}
	score += math.Min(0.5, float64(countMatches(text, urgencyWords))*0.15)
	return math.Min(1.0, score)
}

func priorityLevel(score float64, isEmergency bool) model.Priority {
	switch {
	case isEmergency || score >= thresholdUrgent:
		return model.PriorityUrgent
	case score >= thresholdHigh:
		return model.PriorityHigh
	case score >= thresholdMedium:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

type slaEntry struct {
	emergency, high, medium, low int
	successRate                  float64
}

var slaTable = map[string]slaEntry{
	"water":       {emergency: 1, high: 3, medium: 7, low: 14, successRate: 0.82},
	"roads":       {emergency: 3, high: 7, medium: 15, low: 30, successRate: 0.71},
	"electricity": {emergency: 1, high: 2, medium: 5, low: 10, successRate: 0.88},
	"sanitation":  {emergency: 1, high: 3, medium: 7, low: 14, successRate: 0.79},
	"health":      {emergency: 1, high: 2, medium: 5, low: 10, successRate: 0.90},
	"education":   {emergency: 3, high: 7, medium: 15, low: 30, successRate: 0.75},
	"police":      {emergency: 1, high: 1, medium: 3, low: 7, successRate: 0.85},
	"default":     {emergency: 2, high: 7, medium: 14, low: 30, successRate: 0.76},
}

// GetSLAForCategory looks up the resolution window for a category and
// priority level, counted from now. Unknown categories use the default row;
// "urgent" reads the emergency column and unknown levels read medium.
func GetSLAForCategory(category, levelName string, now time.Time) model.SLA {
	key := strings.ToLower(strings.TrimSpace(category))
	entry, ok := slaTable[key]
	if !ok {
		key = "default"
		entry = slaTable[key]
	}

	var days int
	level := strings.ToLower(strings.TrimSpace(levelName))
	switch level {
	case "emergency", string(model.PriorityUrgent):
		level = "emergency"
		days = entry.emergency
	case string(model.PriorityHigh):
		days = entry.high
	case string(model.PriorityLow):
		days = entry.low
	default:
		level = string(model.PriorityMedium)
		days = entry.medium
	}

	expected := fmt.Sprintf("Within %d days", days)
	if days == 1 {
		expected = "Within 1 day"
	}

	return model.SLA{
		Category:           key,
		PriorityLevel:      level,
		SLADays:            days,
		ExpectedResolution: expected,
		SuccessRate:        entry.successRate,
		DueDate:            now.AddDate(0, 0, days),
	}
}

// ApplyAssessment copies the scoring result onto the complaint.
func ApplyAssessment(c *model.Complaint, a model.PriorityAssessment, sla model.SLA) {
	score := a.PriorityScore
	due := sla.DueDate
	c.PriorityScore = &score
	c.Priority = a.PriorityLevel
	c.IsEmergency = a.IsEmergency
	c.AffectedPopulationEstimate = a.AffectedPopulationEstimate
	c.SLADueAt = &due
}

type PriorityService struct {
	complaints      ComplaintStore
	duplicateRadius float64
	now             func() time.Time
}

func NewPriorityService(complaints ComplaintStore, duplicateRadiusMeters float64) *PriorityService {
	if duplicateRadiusMeters <= 0 {
		duplicateRadiusMeters = DefaultDuplicateRadiusMeters
	}
	return &PriorityService{
		complaints:      complaints,
		duplicateRadius: duplicateRadiusMeters,
		now:             time.Now,
	}
}

// Score computes the assessment and counts it by level.
func (s *PriorityService) Score(in PriorityInput) model.PriorityAssessment {
	assessment := CalculatePriorityScore(in)
	metrics.PriorityAssessments.WithLabelValues(string(assessment.PriorityLevel)).Inc()
	return assessment
}

// Assess scores the input and resolves the SLA for the resulting level.
func (s *PriorityService) Assess(in PriorityInput) (model.PriorityAssessment, model.SLA) {
	assessment := s.Score(in)
	return assessment, GetSLAForCategory(in.Category, string(assessment.PriorityLevel), s.now())
}

// SLA resolves the SLA window relative to the service clock.
func (s *PriorityService) SLA(category, levelName string) model.SLA {
	return GetSLAForCategory(category, levelName, s.now())
}

// DetectNearbyDuplicates returns open, non-duplicate complaints of the same
// category within radiusMeters of the point, nearest first, excluding the
// complaint itself. A radius <= 0 uses the configured default.
func (s *PriorityService) DetectNearbyDuplicates(ctx context.Context, complaintID uuid.UUID, lat, lng float64, category string, radiusMeters float64) ([]model.NearbyDuplicate, error) {
	if radiusMeters <= 0 {
		radiusMeters = s.duplicateRadius
	}
	center := geo.Point{Lat: lat, Lng: lng}

	candidates, err := s.complaints.FindNearby(ctx, repository.NearbyQuery{
		Category:  category,
		Center:    center,
		Box:       geo.BoundingBox(center, radiusMeters),
		ExcludeID: complaintID,
		Statuses:  model.OpenStatuses,
		Limit:     duplicateCandidateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("find nearby complaints: %w", err)
	}

	duplicates := []model.NearbyDuplicate{}
	for _, c := range candidates {
		if c.ID == complaintID || c.IsDuplicate || !c.HasLocation() || !c.Status.IsOpen() {
			continue
		}
		if !strings.EqualFold(c.Category, category) {
			continue
		}
		d := geo.HaversineMeters(lat, lng, *c.Lat, *c.Lng)
		if d > radiusMeters {
			continue
		}
		duplicates = append(duplicates, model.NearbyDuplicate{Complaint: c, DistanceMeters: roundTo(d, 1)})
	}

	sort.SliceStable(duplicates, func(i, j int) bool {
		return duplicates[i].DistanceMeters < duplicates[j].DistanceMeters
	})
	if len(duplicates) > maxDuplicateResults {
		duplicates = duplicates[:maxDuplicateResults]
	}
	return duplicates, nil
}

// CalculateQueuePosition ranks a complaint among the open complaints of its
// constituency (and department, if given) by priority score. A missing
// complaint yields a zero position.
func (s *PriorityService) CalculateQueuePosition(ctx context.Context, complaintID, constituencyID uuid.UUID, departmentID *uuid.UUID) (model.QueuePosition, error) {
	result := model.QueuePosition{ComplaintID: complaintID}

	complaint, err := s.complaints.FindByID(ctx, complaintID)
	if errors.Is(err, repository.ErrNotFound) {
		return result, nil
	}
	if err != nil {
		return result, err
	}

	score := 0.0
	if complaint.PriorityScore != nil {
		score = *complaint.PriorityScore
	}

	ahead, total, err := s.complaints.CountQueue(ctx, repository.QueueQuery{
		ConstituencyID: constituencyID,
		DepartmentID:   departmentID,
		Score:          score,
		Statuses:       model.OpenStatuses,
	})
	if err != nil {
		return result, fmt.Errorf("count queue: %w", err)
	}

	result.Position = ahead + 1
	result.Total = total
	if total > 0 {
		result.Percentile = roundTo((1-float64(result.Position)/float64(total))*100, 1)
	}
	return result, nil
}

// countMatches counts the keywords that occur in text starting at a word
// boundary, so "soon" does not fire on "monsoon" but "fire" still matches
// "fires".
func countMatches(text string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if containsWordPrefix(text, k) {
			n++
		}
	}
	return n
}

func containsWordPrefix(text, keyword string) bool {
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], keyword)
		if i < 0 {
			return false
		}
		start := offset + i
		if start == 0 || !isWordByte(text[start-1]) {
			return true
		}
		offset = start + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_' || b >= 0x80
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
