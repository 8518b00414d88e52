package services

import (
	"context"

	"github.com/kendall-kelly/usta-go-api/apperrors"
	"github.com/kendall-kelly/usta-go-api/models"
	"gorm.io/gorm"
)

// ReviewService lists reviews. Reviews are created by JobService.Rate.
type ReviewService struct {
	base
}

// ListByProfessional returns a professional's reviews, newest first
func (s *ReviewService) ListByProfessional(ctx context.Context, professionalID uint, page Page) ([]models.Review, int64, error) {
	var professional models.User
	if err := s.conn(ctx).First(&professional, professionalID).Error; err != nil {
		return nil, 0, apperrors.FromDB(err, "User")
	}
	if professional.Role != models.RoleProfessional {
		return nil, 0, apperrors.NotFound("Professional not found")
	}

	query := s.conn(ctx).Model(&models.Review{}).Where("professional_id = ?", professionalID)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		logFailure("Failed to count reviews", err)
		return nil, 0, apperrors.Internal(err)
	}

	page = page.Normalize()
	var reviews []models.Review
	err := query.
		Preload("Customer").
		Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&reviews).Error
	if err != nil {
		logFailure("Failed to list reviews", err)
		return nil, 0, apperrors.Internal(err)
	}
	return reviews, total, nil
}

// ListByJob returns the review of a job, if any
func (s *ReviewService) ListByJob(ctx context.Context, jobID uint) ([]models.Review, error) {
	var job models.Job
	if err := s.conn(ctx).First(&job, jobID).Error; err != nil {
		return nil, apperrors.FromDB(err, "Job")
	}

	var reviews []models.Review
	if err := s.conn(ctx).Preload("Customer").Where("job_id = ?", jobID).Find(&reviews).Error; err != nil {
		logFailure("Failed to list job reviews", err)
		return nil, apperrors.Internal(err)
	}
	return reviews, nil
}

// recomputeRating sets a professional's aggregate rating to the arithmetic
// mean of all of their reviews. It runs inside the transaction that inserted
// the newest review so that concurrent ratings see each other's rows.
func recomputeRatings(tx *gorm.DB, professionalIDs []uint) error {
	for _, id := range professionalIDs {
		if err := recomputeRating(tx, id); err != nil {
			return err
		}
	}
	return nil
}

func recomputeRating(tx *gorm.DB, professionalID uint) error {
	var agg struct {
		Average float64
		Count   int64
	}
	err := tx.Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS average, COUNT(*) AS count").
		Where("professional_id = ?", professionalID).
		Scan(&agg).Error
	if err != nil {
		return err
	}

	return adjustCounters(tx, professionalID, map[string]interface{}{
		"rating":       agg.Average,
		"review_count": agg.Count,
	})
}
