package handler

import (
	"errors"
	"log"
	"net/http"

	"janasamparka/internal/middleware"
	"janasamparka/internal/model"
	"janasamparka/internal/repository"
	"janasamparka/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var badRequestErrors = []error{
	service.ErrWardNotFound,
	service.ErrDepartmentNotFound,
	service.ErrOfficerNotFound,
	service.ErrComplaintNoWard,
	service.ErrEmptyNote,
	service.ErrInvalidLocation,
	service.ErrNoLocation,
	service.ErrSelfDuplicate,
	service.ErrParentIsDuplicate,
	service.ErrAlreadyDuplicate,
	service.ErrHasDuplicates,
	service.ErrNotWithDepartment,
	service.ErrOfficerOutsideDepartment,
}

// writeError maps service and repository errors to HTTP responses.
func writeError(c *gin.Context, err error) {
	var wfErr *service.WorkflowError
	if errors.As(err, &wfErr) {
		status := http.StatusBadRequest
		if errors.Is(err, service.ErrPermissionDenied) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{
			"error": wfErr.Reason,
			"from":  wfErr.From,
			"to":    wfErr.To,
		})
		return
	}

	var jErr *service.JurisdictionError
	if errors.As(err, &jErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": jErr.Reason})
		return
	}

	switch {
	case errors.Is(err, service.ErrAccessDenied), errors.Is(err, service.ErrNoDepartment):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrComplaintNotFound), errors.Is(err, service.ErrNotificationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, repository.ErrConcurrentUpdate):
		c.JSON(http.StatusConflict, gin.H{"error": "complaint was modified by someone else, reload and retry"})
		return
	}

	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	log.Printf("handler: %s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func principal(c *gin.Context) (model.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return p, ok
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// uuidQuery parses an optional id from the query string into dst.
func uuidQuery(c *gin.Context, name string, dst **uuid.UUID) bool {
	raw := c.Query(name)
	if raw == "" {
		return true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return false
	}
	*dst = &id
	return true
}
