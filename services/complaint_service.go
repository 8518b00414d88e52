package services

import (
	"context"
	"strings"

	"github.com/kendall-kelly/usta-go-api/apperrors"
	"github.com/kendall-kelly/usta-go-api/logger"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ComplaintService files disputes on jobs and lets admins close them
type ComplaintService struct {
	base
}

// CreateComplaintInput describes a dispute
type CreateComplaintInput struct {
	JobID       uint
	Reason      string
	Description string
}

// ComplaintFilter narrows a complaint listing
type ComplaintFilter struct {
	Status models.ComplaintStatus
	Page   Page
}

// Create files a complaint. Only the job's customer or its assigned
// professional may file; the other party is recorded as the subject.
func (s *ComplaintService) Create(ctx context.Context, actor *models.User, in CreateComplaintInput) (*models.Complaint, error) {
	var job models.Job
	if err := s.conn(ctx).First(&job, in.JobID).Error; err != nil {
		return nil, apperrors.FromDB(err, "Job")
	}
	if !job.IsParticipant(actor.ID) {
		return nil, apperrors.Forbidden("Only participants of the job can file a complaint")
	}

	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, apperrors.InvalidInput("reason is required")
	}

	complaint := models.Complaint{
		JobID:       job.ID,
		FilerID:     actor.ID,
		AgainstID:   job.OtherParty(actor.ID),
		Reason:      reason,
		Description: strings.TrimSpace(in.Description),
		Status:      models.ComplaintOpen,
	}
	if err := s.conn(ctx).Create(&complaint).Error; err != nil {
		logFailure("Failed to create complaint", err, zap.Uint("job_id", job.ID))
		return nil, apperrors.FromDB(err, "Complaint")
	}

	logger.Log.Info("Complaint filed", zap.Uint("complaint_id", complaint.ID), zap.Uint("job_id", job.ID))
	s.publish(ctx, realtime.Event{
		Type:       realtime.EventComplaintFiled,
		Recipients: realtime.Recipients(complaint.AgainstID),
		JobID:      job.ID,
		Payload:    map[string]interface{}{"complaint_id": complaint.ID},
	})
	return &complaint, nil
}

// Get returns a complaint to an admin, its filer or its subject
func (s *ComplaintService) Get(ctx context.Context, actor *models.User, id uint) (*models.Complaint, error) {
	complaint, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSeeComplaint(actor, complaint) {
		return nil, apperrors.Forbidden("You do not have permission to view this complaint")
	}
	return complaint, nil
}

// List returns all complaints to admins and otherwise the ones the caller
// filed or is the subject of
func (s *ComplaintService) List(ctx context.Context, actor *models.User, f ComplaintFilter) ([]models.Complaint, int64, error) {
	query := s.conn(ctx).Model(&models.Complaint{})
	if actor.Role != models.RoleAdmin {
		query = query.Where("filer_id = ? OR against_id = ?", actor.ID, actor.ID)
	}
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, 0, apperrors.InvalidInput("unknown complaint status")
		}
		query = query.Where("status = ?", f.Status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		logFailure("Failed to count complaints", err)
		return nil, 0, apperrors.Internal(err)
	}

	page := f.Page.Normalize()
	var complaints []models.Complaint
	err := query.
		Preload("Filer").
		Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&complaints).Error
	if err != nil {
		logFailure("Failed to list complaints", err)
		return nil, 0, apperrors.Internal(err)
	}
	return complaints, total, nil
}

// Resolve closes an OPEN complaint in favour of the filer
func (s *ComplaintService) Resolve(ctx context.Context, actor *models.User, id uint, resolution string) (*models.Complaint, error) {
	return s.close(ctx, actor, id, models.ComplaintResolved, resolution)
}

// Reject closes an OPEN complaint without action
func (s *ComplaintService) Reject(ctx context.Context, actor *models.User, id uint, resolution string) (*models.Complaint, error) {
	return s.close(ctx, actor, id, models.ComplaintRejected, resolution)
}

func (s *ComplaintService) close(ctx context.Context, actor *models.User, id uint, to models.ComplaintStatus, resolution string) (*models.Complaint, error) {
	if actor.Role != models.RoleAdmin {
		return nil, apperrors.Forbidden("Admin access required")
	}
	complaint, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if complaint.Status != models.ComplaintOpen {
		return nil, apperrors.InvalidState("Complaint is already " + string(complaint.Status))
	}

	updates := map[string]interface{}{
		"status":         to,
		"resolved_by_id": actor.ID,
		"resolved_at":    now(),
	}
	if resolution = strings.TrimSpace(resolution); resolution != "" {
		updates["resolution"] = resolution
	}
	res := s.conn(ctx).Model(&models.Complaint{}).
		Where("id = ? AND status = ?", complaint.ID, models.ComplaintOpen).
		Updates(updates)
	if res.Error != nil {
		logFailure("Failed to close complaint", res.Error, zap.Uint("complaint_id", id))
		return nil, apperrors.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.InvalidState("Complaint changed state")
	}

	logger.Log.Info("Complaint closed", zap.Uint("complaint_id", id), zap.String("status", string(to)))
	s.publish(ctx, realtime.Event{
		Type:       realtime.EventComplaintClosed,
		Recipients: realtime.Recipients(uintPtr(complaint.FilerID), complaint.AgainstID),
		JobID:      complaint.JobID,
		Payload:    map[string]interface{}{"complaint_id": complaint.ID, "status": to},
	})
	return s.find(ctx, id)
}

func (s *ComplaintService) find(ctx context.Context, id uint) (*models.Complaint, error) {
	var complaint models.Complaint
	if err := s.conn(ctx).Preload("Filer").First(&complaint, id).Error; err != nil {
		return nil, apperrors.FromDB(err, "Complaint")
	}
	return &complaint, nil
}

func canSeeComplaint(actor *models.User, c *models.Complaint) bool {
	if actor.Role == models.RoleAdmin || c.FilerID == actor.ID {
		return true
	}
	return c.AgainstID != nil && *c.AgainstID == actor.ID
}
