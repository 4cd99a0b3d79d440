package handler

import (
	"net/http"
	"strconv"

	"janasamparka/internal/middleware"
	"janasamparka/internal/model"
	"janasamparka/internal/service"

	"github.com/gin-gonic/gin"
)

type ClusterHandler struct {
	clustering *service.ClusteringService
}

func NewClusterHandler(clustering *service.ClusteringService) *ClusterHandler {
	return &ClusterHandler{clustering: clustering}
}

func (h *ClusterHandler) Register(r gin.IRoutes) {
	r.GET("/admin/clusters", middleware.RequireRole(service.AnalysisRoles...), h.Analyze)
}

// Handles GET /admin/clusters - groups nearby open complaints and proposes batch projects.
//
// Query: constituency_id, category, radius (meters), min_size.
func (h *ClusterHandler) Analyze(c *gin.Context) {
	filter := model.ClusterFilter{Category: c.Query("category")}

	if !uuidQuery(c, "constituency_id", &filter.ConstituencyID) {
		return
	}

	if raw := c.Query("radius"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 || r > 10000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "radius must be between 0 and 10000 meters"})
			return
		}
		filter.MaxRadiusMeters = r
	}

	if raw := c.Query("min_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 2 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_size must be an integer of at least 2"})
			return
		}
		filter.MinClusterSize = n
	}

	resp, err := h.clustering.Analyze(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
