package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/services"
)

// CreateComplaintRequest represents a dispute filed about a job
type CreateComplaintRequest struct {
	JobID       uint   `json:"job_id" binding:"required"`
	Reason      string `json:"reason" binding:"required,notblank,max=200"`
	Description string `json:"description" binding:"max=4000"`
}

// CloseComplaintRequest carries the admin's resolution note
type CloseComplaintRequest struct {
	Resolution string `json:"resolution" binding:"max=2000"`
}

// CreateComplaint handles POST /api/v1/complaints
func CreateComplaint(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateComplaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	complaint, err := services.Get().Complaints.Create(c.Request.Context(), user, services.CreateComplaintInput{
		JobID:       req.JobID,
		Reason:      req.Reason,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, complaint)
}

// ListComplaints handles GET /api/v1/complaints
func ListComplaints(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	page := pageFromQuery(c)
	complaints, total, err := services.Get().Complaints.List(c.Request.Context(), user, services.ComplaintFilter{
		Status: models.ComplaintStatus(c.Query("status")),
		Page:   page,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondPage(c, complaints, page, total)
}

// GetComplaint handles GET /api/v1/complaints/:id
func GetComplaint(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	complaintID, ok := paramID(c, "id", "complaint")
	if !ok {
		return
	}

	complaint, err := services.Get().Complaints.Get(c.Request.Context(), user, complaintID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, complaint)
}

// ResolveComplaint handles POST /api/v1/admin/complaints/:id/resolve
func ResolveComplaint(c *gin.Context) {
	closeComplaint(c, true)
}

// RejectComplaint handles POST /api/v1/admin/complaints/:id/reject
func RejectComplaint(c *gin.Context) {
	closeComplaint(c, false)
}

func closeComplaint(c *gin.Context, resolve bool) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	complaintID, ok := paramID(c, "id", "complaint")
	if !ok {
		return
	}

	var req CloseComplaintRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	complaints := services.Get().Complaints
	var (
		complaint *models.Complaint
		err       error
	)
	if resolve {
		complaint, err = complaints.Resolve(c.Request.Context(), user, complaintID, req.Resolution)
	} else {
		complaint, err = complaints.Reject(c.Request.Context(), user, complaintID, req.Resolution)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, complaint)
}
