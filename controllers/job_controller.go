package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/usta-go-api/apperrors"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/services"
	"github.com/kendall-kelly/usta-go-api/utils"
)

// CreateJobRequest represents the request body for posting a job
type CreateJobRequest struct {
	Title       string  `json:"title" binding:"required,notblank,max=200"`
	Description string  `json:"description" binding:"required,notblank"`
	Category    string  `json:"category" binding:"required,notblank,max=100"`
	Location    string  `json:"location" binding:"required,notblank,max=255"`
	Budget      float64 `json:"budget" binding:"required,gt=0"`
	CustomerID  *uint   `json:"customer_id" binding:"omitempty,gt=0"`
}

// StartJobRequest carries optional before photos
type StartJobRequest struct {
	BeforePhotos []string `json:"before_photos" binding:"omitempty,max=20,dive,notblank"`
}

// CompleteJobRequest carries the after photos proving the work
type CompleteJobRequest struct {
	AfterPhotos []string `json:"after_photos" binding:"omitempty,max=20,dive,notblank"`
}

type CancelJobRequest struct {
	Reason  string  `json:"reason" binding:"max=500"`
	Penalty float64 `json:"penalty" binding:"gte=0"`
}

// RateJobRequest represents the customer's rating of a completed job
type RateJobRequest struct {
	Rating int     `json:"rating"`
	Review *string `json:"review" binding:"omitempty,max=2000"`
}

// CreateJob handles POST /api/v1/jobs
func CreateJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	job, err := services.Get().Jobs.Create(c.Request.Context(), user, services.CreateJobInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Location:    req.Location,
		Budget:      req.Budget,
		CustomerID:  req.CustomerID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, job)
}

// ListJobs handles GET /api/v1/jobs
// Customers see their own jobs, professionals the open market plus jobs they
// are involved in, admins everything.
func ListJobs(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	page := pageFromQuery(c)
	jobs, total, err := services.Get().Jobs.List(c.Request.Context(), user, services.JobFilter{
		Status:   models.JobStatus(c.Query("status")),
		Category: c.Query("category"),
		Page:     page,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondPage(c, jobs, page, total)
}

// GetJob handles GET /api/v1/jobs/:id
func GetJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	jobID, ok := paramID(c, "id", "job")
	if !ok {
		return
	}

	job, err := services.Get().Jobs.Get(c.Request.Context(), user, jobID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, job)
}

// DeleteJob handles DELETE /api/v1/jobs/:id
func DeleteJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	jobID, ok := paramID(c, "id", "job")
	if !ok {
		return
	}

	if err := services.Get().Jobs.Delete(c.Request.Context(), user, jobID); err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{"id": jobID, "deleted": true})
}

// AcceptJob handles POST /api/v1/jobs/:id/accept
func AcceptJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	jobID, ok := paramID(c, "id", "job")
	if !ok {
		return
	}

	job, err := services.Get().Jobs.Accept(c.Request.Context(), user, jobID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, job)
}

// StartJob handles POST /api/v1/jobs/:id/start
func StartJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	jobID, ok := paramID(c, "id", "job")
	if !ok {
		return
	}

	var req StartJobRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	job, err := services.Get().Jobs.Start(c.Request.Context(), user, jobID, req.BeforePhotos)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, job)
}

// CompleteJob handles POST /api/v1/jobs/:id/complete
func CompleteJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	jobID, ok := paramID(c, "id", "job")
	if !ok {
		return
	}

	var req CompleteJobRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	job, err := services.Get().Jobs.Complete(c.Request.Context(), user, jobID, req.AfterPhotos)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, job)
}

// CancelJob handles POST /api/v1/jobs/:id/cancel
func CancelJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	jobID, ok := paramID(c, "id", "job")
	if !ok {
		return
	}

	var req CancelJobRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	job, err := services.Get().Jobs.Cancel(c.Request.Context(), user, jobID, services.CancelInput{
		Reason:  req.Reason,
		Penalty: req.Penalty,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, job)
}

// RateJob handles POST /api/v1/jobs/:id/rate
func RateJob(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	jobID, ok := paramID(c, "id", "job")
	if !ok {
		return
	}

	var req RateJobRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	job, review, err := services.Get().Jobs.Rate(c.Request.Context(), user, jobID, services.RateInput{
		Rating: req.Rating,
		Review: req.Review,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{
		"job":    job,
		"review": review,
	})
}

// UploadJobPhoto handles POST /api/v1/jobs/:id/photos
// Expects multipart/form-data with an "image" file and an optional "kind"
// field of before or after. The returned URL is what start and complete take.
func UploadJobPhoto(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	jobID, ok := paramID(c, "id", "job")
	if !ok {
		return
	}

	kind := c.DefaultPostForm("kind", "before")
	if kind != "before" && kind != "after" {
		respondError(c, apperrors.InvalidInput("kind must be before or after"))
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("MISSING_IMAGE", "An image file is required"))
		return
	}
	if err := utils.ValidateImageFile(fileHeader); err != nil {
		code := "INVALID_IMAGE"
		var uploadErr *utils.FileUploadError
		if errors.As(err, &uploadErr) {
			code = uploadErr.Code
		}
		c.JSON(http.StatusBadRequest, errorBody(code, err.Error()))
		return
	}

	ctx := c.Request.Context()
	if _, err := services.Get().Jobs.AuthorizePhotoUpload(ctx, user, jobID); err != nil {
		respondError(c, err)
		return
	}

	imageService := services.GetImageService()
	if imageService == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("STORAGE_UNAVAILABLE", "Image storage is not configured"))
		return
	}

	key, err := imageService.UploadImage(ctx, fileHeader, fmt.Sprintf("jobs/%d/%s", jobID, kind))
	if err != nil {
		respondError(c, err)
		return
	}
	url, err := imageService.GetImageURL(ctx, key)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, gin.H{
		"key":  key,
		"url":  url,
		"kind": kind,
	})
}

// ListJobReviews handles GET /api/v1/jobs/:id/reviews
func ListJobReviews(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	jobID, ok := paramID(c, "id", "job")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := services.Get().Jobs.Get(ctx, user, jobID); err != nil {
		respondError(c, err)
		return
	}

	reviews, err := services.Get().Reviews.ListByJob(ctx, jobID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, reviews)
}
