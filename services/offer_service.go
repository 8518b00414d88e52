package services

import (
	"context"

	"github.com/kendall-kelly/usta-go-api/apperrors"
	"github.com/kendall-kelly/usta-go-api/logger"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OfferService owns offer negotiation on open jobs
type OfferService struct {
	base
}

// CreateOfferInput is a professional's bid
type CreateOfferInput struct {
	Price   float64
	Message *string
}

// OfferFilter narrows an offer listing
type OfferFilter struct {
	Status models.OfferStatus
	Page   Page
}

// Create submits a bid on a PENDING job. A professional may hold at most one
// offer per job.
func (s *OfferService) Create(ctx context.Context, actor *models.User, jobID uint, in CreateOfferInput) (*models.Offer, error) {
	if actor.Role != models.RoleProfessional {
		return nil, apperrors.Forbidden("Only professionals can make offers")
	}

	var job models.Job
	if err := s.conn(ctx).First(&job, jobID).Error; err != nil {
		return nil, apperrors.FromDB(err, "Job")
	}
	if job.Status != models.JobPending {
		return nil, apperrors.InvalidState("Offers can only be made on pending jobs")
	}
	if in.Price <= 0 {
		return nil, apperrors.InvalidInput("price must be greater than zero")
	}

	var existing int64
	err := s.conn(ctx).Model(&models.Offer{}).
		Where("job_id = ? AND professional_id = ?", job.ID, actor.ID).
		Count(&existing).Error
	if err != nil {
		logFailure("Failed to check existing offer", err, zap.Uint("job_id", job.ID))
		return nil, apperrors.Internal(err)
	}
	if existing > 0 {
		return nil, apperrors.Conflict("You have already made an offer on this job")
	}

	offer := models.Offer{
		JobID:          job.ID,
		ProfessionalID: actor.ID,
		Price:          in.Price,
		Message:        trimmedOrNil(in.Message),
		Status:         models.OfferPending,
	}
	if err := s.conn(ctx).Create(&offer).Error; err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, apperrors.Conflict("You have already made an offer on this job")
		}
		logFailure("Failed to create offer", err, zap.Uint("job_id", job.ID))
		return nil, apperrors.Internal(err)
	}

	s.metrics.RecordOfferTransition(string(models.OfferPending), 1)
	logger.Log.Info("Offer created",
		zap.Uint("offer_id", offer.ID),
		zap.Uint("job_id", job.ID),
		zap.Uint("professional_id", actor.ID),
	)
	s.publish(ctx, realtime.Event{
		Type:       realtime.EventOfferCreated,
		Recipients: []uint{job.CustomerID},
		JobID:      job.ID,
		OfferID:    offer.ID,
		Payload:    map[string]interface{}{"price": offer.Price},
	})

	return s.load(ctx, offer.ID)
}

// Accept accepts an offer on the caller's job. In one transaction the offer
// becomes ACCEPTED, the job jumps from PENDING straight to IN_PROGRESS at the
// offer's price, and every other PENDING offer on the job is rejected.
func (s *OfferService) Accept(ctx context.Context, actor *models.User, offerID uint) (*models.Offer, error) {
	offer, job, err := s.findWithJob(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !job.IsOwnedBy(actor.ID) {
		return nil, apperrors.Forbidden("Only the job owner can accept offers")
	}
	if offer.Status != models.OfferPending {
		return nil, apperrors.InvalidState("Offer is already " + string(offer.Status))
	}
	if job.Status != models.JobPending || job.ProfessionalID != nil {
		return nil, apperrors.InvalidState("Job is no longer open for offers")
	}

	var rejected []uint
	err = s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		ts := now()
		res := tx.Model(&models.Offer{}).
			Where("id = ? AND status = ?", offer.ID, models.OfferPending).
			Updates(map[string]interface{}{
				"status":      models.OfferAccepted,
				"accepted_at": ts,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.Conflict("Offer changed state while accepting")
		}

		res = tx.Model(&models.Job{}).
			Where("id = ? AND status = ? AND professional_id IS NULL", job.ID, models.JobPending).
			Updates(map[string]interface{}{
				"status":          models.JobInProgress,
				"professional_id": offer.ProfessionalID,
				"agreed_price":    offer.Price,
				"started_at":      ts,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.Conflict("Job has already been claimed")
		}

		var err error
		if rejected, err = rejectPendingOffers(tx, job.ID, offer.ID); err != nil {
			return err
		}

		return adjustCounters(tx, offer.ProfessionalID, map[string]interface{}{
			"pending_jobs": gorm.Expr("pending_jobs + 1"),
		})
	})
	if err != nil {
		return nil, s.txError("Failed to accept offer", err, offer.ID)
	}

	s.metrics.RecordOfferTransition(string(models.OfferAccepted), 1)
	s.metrics.RecordOfferTransition(string(models.OfferRejected), len(rejected))
	s.metrics.RecordJobTransition(string(models.JobInProgress))
	logger.Log.Info("Offer accepted",
		zap.Uint("offer_id", offer.ID),
		zap.Uint("job_id", job.ID),
		zap.Int("rejected", len(rejected)),
	)

	s.publish(ctx, realtime.Event{
		Type:       realtime.EventOfferAccepted,
		Recipients: []uint{offer.ProfessionalID},
		JobID:      job.ID,
		OfferID:    offer.ID,
	})
	s.publish(ctx, realtime.Event{
		Type:       realtime.EventOfferRejected,
		Recipients: rejected,
		JobID:      job.ID,
	})
	s.publish(ctx, realtime.Event{
		Type:       realtime.EventJobUpdated,
		Recipients: []uint{job.CustomerID, offer.ProfessionalID},
		JobID:      job.ID,
		Payload:    map[string]interface{}{"status": models.JobInProgress},
	})

	return s.load(ctx, offer.ID)
}

// Reject declines a single offer on the caller's job
func (s *OfferService) Reject(ctx context.Context, actor *models.User, offerID uint) (*models.Offer, error) {
	offer, job, err := s.findWithJob(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if !job.IsOwnedBy(actor.ID) {
		return nil, apperrors.Forbidden("Only the job owner can reject offers")
	}

	if err := s.closeOffer(ctx, offer, models.OfferRejected, "rejected_at"); err != nil {
		return nil, err
	}

	s.publish(ctx, realtime.Event{
		Type:       realtime.EventOfferRejected,
		Recipients: []uint{offer.ProfessionalID},
		JobID:      job.ID,
		OfferID:    offer.ID,
	})
	return s.load(ctx, offer.ID)
}

// Withdraw retracts the caller's own offer
func (s *OfferService) Withdraw(ctx context.Context, actor *models.User, offerID uint) (*models.Offer, error) {
	offer, job, err := s.findWithJob(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.ProfessionalID != actor.ID {
		return nil, apperrors.Forbidden("Only the author can withdraw this offer")
	}

	if err := s.closeOffer(ctx, offer, models.OfferWithdrawn, "withdrawn_at"); err != nil {
		return nil, err
	}

	s.publish(ctx, realtime.Event{
		Type:       realtime.EventOfferWithdrawn,
		Recipients: []uint{job.CustomerID},
		JobID:      job.ID,
		OfferID:    offer.ID,
	})
	return s.load(ctx, offer.ID)
}

// Get returns an offer to its author, the job owner or an admin
func (s *OfferService) Get(ctx context.Context, actor *models.User, offerID uint) (*models.Offer, error) {
	offer, job, err := s.findWithJob(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && offer.ProfessionalID != actor.ID && !job.IsOwnedBy(actor.ID) {
		return nil, apperrors.Forbidden("You do not have permission to view this offer")
	}
	return s.load(ctx, offer.ID)
}

// ListForJob lists offers on a job. The owner and admins see all of them,
// a professional sees only their own.
func (s *OfferService) ListForJob(ctx context.Context, actor *models.User, jobID uint, f OfferFilter) ([]models.Offer, int64, error) {
	var job models.Job
	if err := s.conn(ctx).First(&job, jobID).Error; err != nil {
		return nil, 0, apperrors.FromDB(err, "Job")
	}

	query := s.conn(ctx).Model(&models.Offer{}).Where("job_id = ?", job.ID)
	switch {
	case actor.Role == models.RoleAdmin, job.IsOwnedBy(actor.ID):
	case actor.Role == models.RoleProfessional:
		query = query.Where("professional_id = ?", actor.ID)
	default:
		return nil, 0, apperrors.Forbidden("You do not have permission to view offers on this job")
	}

	return s.list(query, f)
}

// ListMine lists the caller's own offers
func (s *OfferService) ListMine(ctx context.Context, actor *models.User, f OfferFilter) ([]models.Offer, int64, error) {
	if actor.Role != models.RoleProfessional {
		return nil, 0, apperrors.Forbidden("Only professionals have offers")
	}
	query := s.conn(ctx).Model(&models.Offer{}).Where("professional_id = ?", actor.ID)
	return s.list(query.Preload("Job"), f)
}

func (s *OfferService) list(query *gorm.DB, f OfferFilter) ([]models.Offer, int64, error) {
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, 0, apperrors.InvalidInput("unknown offer status")
		}
		query = query.Where("status = ?", f.Status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		logFailure("Failed to count offers", err)
		return nil, 0, apperrors.Internal(err)
	}

	page := f.Page.Normalize()
	var offers []models.Offer
	err := query.
		Preload("Professional").
		Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&offers).Error
	if err != nil {
		logFailure("Failed to list offers", err)
		return nil, 0, apperrors.Internal(err)
	}
	return offers, total, nil
}

// closeOffer moves a PENDING offer into a terminal status
func (s *OfferService) closeOffer(ctx context.Context, offer *models.Offer, to models.OfferStatus, stampColumn string) error {
	if offer.Status != models.OfferPending {
		return apperrors.InvalidState("Offer is already " + string(offer.Status))
	}

	res := s.conn(ctx).Model(&models.Offer{}).
		Where("id = ? AND status = ?", offer.ID, models.OfferPending).
		Updates(map[string]interface{}{
			"status":    to,
			stampColumn: now(),
		})
	if res.Error != nil {
		return s.txError("Failed to update offer", res.Error, offer.ID)
	}
	if res.RowsAffected == 0 {
		return apperrors.InvalidState("Offer changed state")
	}

	s.metrics.RecordOfferTransition(string(to), 1)
	logger.Log.Info("Offer closed", zap.Uint("offer_id", offer.ID), zap.String("status", string(to)))
	return nil
}

func (s *OfferService) findWithJob(ctx context.Context, offerID uint) (*models.Offer, *models.Job, error) {
	var offer models.Offer
	if err := s.conn(ctx).First(&offer, offerID).Error; err != nil {
		return nil, nil, apperrors.FromDB(err, "Offer")
	}
	var job models.Job
	if err := s.conn(ctx).First(&job, offer.JobID).Error; err != nil {
		return nil, nil, apperrors.FromDB(err, "Job")
	}
	return &offer, &job, nil
}

func (s *OfferService) load(ctx context.Context, offerID uint) (*models.Offer, error) {
	var offer models.Offer
	if err := s.conn(ctx).Preload("Professional").First(&offer, offerID).Error; err != nil {
		return nil, apperrors.FromDB(err, "Offer")
	}
	return &offer, nil
}

func (s *OfferService) txError(msg string, err error, offerID uint) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	logFailure(msg, err, zap.Uint("offer_id", offerID))
	return apperrors.FromDB(err, "Offer")
}
