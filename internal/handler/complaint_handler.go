package handler

import (
	"context"
	"net/http"
	"strconv"

	"janasamparka/internal/model"
	"janasamparka/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ComplaintHandler struct {
	complaints *service.ComplaintService
	priority   *service.PriorityService
}

func NewComplaintHandler(complaints *service.ComplaintService, priority *service.PriorityService) *ComplaintHandler {
	return &ComplaintHandler{complaints: complaints, priority: priority}
}

// Register mounts the complaint routes on an authenticated group.
func (h *ComplaintHandler) Register(r gin.IRoutes) {
	r.POST("/complaints", h.Create)
	r.GET("/complaints", h.List)
	r.GET("/complaints/:id", h.Get)
	r.PATCH("/complaints/:id/status", h.UpdateStatus)
	r.GET("/complaints/:id/transitions", h.Transitions)
	r.GET("/complaints/:id/history", h.History)
	r.POST("/complaints/:id/ward", h.AssignWard)
	r.POST("/complaints/:id/department", h.AssignDepartment)
	r.POST("/complaints/:id/officer", h.AssignOfficer)
	r.POST("/complaints/:id/notes/public", h.AddPublicNote)
	r.POST("/complaints/:id/notes/internal", h.AddInternalNote)
	r.POST("/complaints/:id/rescore", h.Rescore)
	r.GET("/complaints/:id/duplicates", h.Duplicates)
	r.POST("/complaints/:id/duplicate-of/:parentId", h.MarkDuplicate)
	r.GET("/complaints/:id/queue", h.Queue)
	r.POST("/priority/preview", h.PriorityPreview)
	r.GET("/sla", h.SLA)
}

// Handles POST /complaints - scores the complaint and optionally places it in a ward.
func (h *ComplaintHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req model.CreateComplaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	complaint, err := h.complaints.Create(c.Request.Context(), p, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Complaint registered",
		"complaint": complaint,
	})
}

// Handles GET /complaints - role-scoped listing with status, category and text filters.
func (h *ComplaintHandler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req model.ListComplaintsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status != "" && !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + strconv.Quote(string(req.Status))})
		return
	}
	if !uuidQuery(c, "constituency_id", &req.ConstituencyID) ||
		!uuidQuery(c, "ward_id", &req.WardID) ||
		!uuidQuery(c, "dept_id", &req.DeptID) {
		return
	}

	resp, err := h.complaints.List(c.Request.Context(), p, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ComplaintHandler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	complaint, err := h.complaints.Get(c.Request.Context(), p, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, complaint)
}

// Handles PATCH /complaints/:id/status - applies a workflow-checked status change.
func (h *ComplaintHandler) UpdateStatus(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + strconv.Quote(string(req.Status))})
		return
	}

	complaint, err := h.complaints.UpdateStatus(c.Request.Context(), p, id, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Status updated successfully",
		"complaint": complaint,
	})
}

func (h *ComplaintHandler) Transitions(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	resp, err := h.complaints.Transitions(c.Request.Context(), p, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ComplaintHandler) History(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	logs, err := h.complaints.History(c.Request.Context(), p, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if logs == nil {
		logs = []model.StatusLog{}
	}
	c.JSON(http.StatusOK, model.StatusLogListResponse{History: logs, Total: len(logs)})
}

func (h *ComplaintHandler) AssignWard(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.AssignWardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	complaint, err := h.complaints.AssignWard(c.Request.Context(), p, id, req.WardID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, complaint)
}

// Handles POST /complaints/:id/department - ward officer hands the complaint to a department.
func (h *ComplaintHandler) AssignDepartment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.AssignDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	complaint, err := h.complaints.AssignDepartment(c.Request.Context(), p, id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, complaint)
}

func (h *ComplaintHandler) AssignOfficer(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.AssignOfficerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	complaint, err := h.complaints.AssignOfficer(c.Request.Context(), p, id, req.OfficerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, complaint)
}

func (h *ComplaintHandler) AddPublicNote(c *gin.Context) {
	h.addNote(c, h.complaints.AddPublicNote)
}

func (h *ComplaintHandler) AddInternalNote(c *gin.Context) {
	h.addNote(c, h.complaints.AddInternalNote)
}

type noteFunc func(ctx context.Context, p model.Principal, id uuid.UUID, note string) (*model.Complaint, error)

func (h *ComplaintHandler) addNote(c *gin.Context, add noteFunc) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req model.AddNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	complaint, err := add(c.Request.Context(), p, id, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, complaint)
}

func (h *ComplaintHandler) Rescore(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	complaint, err := h.complaints.Rescore(c.Request.Context(), p, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, complaint)
}

// Handles GET /complaints/:id/duplicates?radius=meters - nearby open complaints of the same category.
func (h *ComplaintHandler) Duplicates(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	radius := 0.0
	if raw := c.Query("radius"); raw != "" {
		r, err := strconv.ParseFloat(raw, 64)
		if err != nil || r <= 0 || r > 5000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "radius must be between 0 and 5000 meters"})
			return
		}
		radius = r
	}

	resp, err := h.complaints.Duplicates(c.Request.Context(), p, id, radius)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ComplaintHandler) MarkDuplicate(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	parentID, ok := uuidParam(c, "parentId")
	if !ok {
		return
	}

	complaint, err := h.complaints.MarkDuplicate(c.Request.Context(), p, id, parentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, complaint)
}

func (h *ComplaintHandler) Queue(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	pos, err := h.complaints.Queue(c.Request.Context(), p, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pos)
}

// Handles POST /priority/preview - scores text without storing anything.
func (h *ComplaintHandler) PriorityPreview(c *gin.Context) {
	var req model.PriorityPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := service.PriorityInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Lat:         req.Lat,
		Lng:         req.Lng,
	}
	if req.LocationDescription != nil {
		in.LocationDescription = *req.LocationDescription
	}

	assessment, sla := h.priority.Assess(in)
	c.JSON(http.StatusOK, model.PriorityPreviewResponse{Assessment: assessment, SLA: sla})
}

// Handles GET /sla?category=water&level=high.
func (h *ComplaintHandler) SLA(c *gin.Context) {
	category := c.Query("category")
	if category == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category is required"})
		return
	}
	c.JSON(http.StatusOK, h.priority.SLA(category, c.DefaultQuery("level", string(model.PriorityMedium))))
}
