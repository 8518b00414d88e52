package services

import (
	"context"
	"strings"

	"github.com/kendall-kelly/usta-go-api/apperrors"
	"github.com/kendall-kelly/usta-go-api/logger"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/realtime"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxPhotos caps the before and after photo lists of a job
const MaxPhotos = 20

// JobService owns the job state machine
type JobService struct {
	base
}

// CreateJobInput describes a new job. CustomerID is honoured only for admins
// posting on behalf of a customer.
type CreateJobInput struct {
	Title       string
	Description string
	Category    string
	Location    string
	Budget      float64
	CustomerID  *uint
}

// JobFilter narrows a job listing
type JobFilter struct {
	Status   models.JobStatus
	Category string
	Page     Page
}

// CancelInput carries the caller-supplied reason and penalty of a cancellation
type CancelInput struct {
	Reason  string
	Penalty float64
}

// RateInput is the customer's verdict on a completed job
type RateInput struct {
	Rating int
	Review *string
}

// Create posts a new job in PENDING
func (s *JobService) Create(ctx context.Context, actor *models.User, in CreateJobInput) (*models.Job, error) {
	customerID := actor.ID
	switch actor.Role {
	case models.RoleCustomer:
	case models.RoleAdmin:
		if in.CustomerID == nil {
			return nil, apperrors.InvalidInput("customer_id is required when an admin creates a job")
		}
		var customer models.User
		if err := s.conn(ctx).First(&customer, *in.CustomerID).Error; err != nil {
			return nil, apperrors.FromDB(err, "Customer")
		}
		if customer.Role != models.RoleCustomer {
			return nil, apperrors.InvalidInput("customer_id must reference a customer")
		}
		customerID = customer.ID
	default:
		return nil, apperrors.Forbidden("Only customers can create jobs")
	}

	job := models.Job{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Location:    strings.TrimSpace(in.Location),
		Budget:      in.Budget,
		Status:      models.JobPending,
		CustomerID:  customerID,
	}
	if job.Title == "" || job.Description == "" || job.Category == "" || job.Location == "" {
		return nil, apperrors.InvalidInput("title, description, category and location are required")
	}
	if job.Budget <= 0 {
		return nil, apperrors.InvalidInput("budget must be greater than zero")
	}

	if err := s.conn(ctx).Create(&job).Error; err != nil {
		logFailure("Failed to create job", err, zap.Uint("customer_id", customerID))
		return nil, apperrors.FromDB(err, "Job")
	}

	s.metrics.RecordJobTransition(string(models.JobPending))
	logger.Log.Info("Job created", zap.Uint("job_id", job.ID), zap.Uint("customer_id", customerID))
	s.publish(ctx, realtime.Event{
		Type:       realtime.EventJobCreated,
		Recipients: []uint{customerID},
		JobID:      job.ID,
	})

	return s.load(ctx, job.ID)
}

// Get returns a job visible to actor
func (s *JobService) Get(ctx context.Context, actor *models.User, jobID uint) (*models.Job, error) {
	job, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	visible, err := s.visibleTo(ctx, actor, job)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, apperrors.Forbidden("You do not have permission to view this job")
	}
	return job, nil
}

// List returns the jobs visible to actor, newest first.
// Customers see their own jobs, professionals see open jobs plus the ones
// they are assigned to or have bid on, admins see everything.
func (s *JobService) List(ctx context.Context, actor *models.User, f JobFilter) ([]models.Job, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperrors.InvalidInput("unknown job status")
	}

	query := s.conn(ctx).Model(&models.Job{})
	switch actor.Role {
	case models.RoleCustomer:
		query = query.Where("customer_id = ?", actor.ID)
	case models.RoleProfessional:
		bidOn := s.conn(ctx).Model(&models.Offer{}).Select("job_id").Where("professional_id = ?", actor.ID)
		query = query.Where("status = ? OR professional_id = ? OR id IN (?)", models.JobPending, actor.ID, bidOn)
	case models.RoleAdmin:
	default:
		return nil, 0, apperrors.Forbidden("Unknown role")
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		logFailure("Failed to count jobs", err)
		return nil, 0, apperrors.Internal(err)
	}

	page := f.Page.Normalize()
	var jobs []models.Job
	err := query.
		Preload("Customer").
		Preload("Professional").
		Order("created_at DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.Limit).
		Find(&jobs).Error
	if err != nil {
		logFailure("Failed to list jobs", err)
		return nil, 0, apperrors.Internal(err)
	}

	return jobs, total, nil
}

// Accept claims a PENDING job for a professional. Of two concurrent calls
// exactly one wins; the other gets Conflict.
func (s *JobService) Accept(ctx context.Context, actor *models.User, jobID uint) (*models.Job, error) {
	if actor.Role != models.RoleProfessional {
		return nil, apperrors.Forbidden("Only professionals can accept jobs")
	}

	job, err := s.find(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ProfessionalID != nil {
		return nil, apperrors.Conflict("Job has already been claimed")
	}
	if job.Status != models.JobPending {
		return nil, apperrors.InvalidState("Job is no longer open for acceptance")
	}

	var rejectedBy []uint
	err = s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Job{}).
			Where("id = ? AND status = ? AND professional_id IS NULL", job.ID, models.JobPending).
			Updates(map[string]interface{}{
				"status":          models.JobAccepted,
				"professional_id": actor.ID,
				"accepted_at":     now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.Conflict("Job has already been claimed")
		}

		// bids left open on a claimed job would otherwise stay acceptable
		var err error
		rejectedBy, err = rejectPendingOffers(tx, job.ID, 0)
		if err != nil {
			return err
		}

		return adjustCounters(tx, actor.ID, map[string]interface{}{
			"pending_jobs": gorm.Expr("pending_jobs + 1"),
		})
	})
	if err != nil {
		return nil, s.txError("Failed to accept job", err, job.ID)
	}

	s.metrics.RecordOfferTransition(string(models.OfferRejected), len(rejectedBy))
	s.transitioned(ctx, job, models.JobAccepted, actor.ID, uintPtr(job.CustomerID), uintPtr(actor.ID))
	if len(rejectedBy) > 0 {
		s.publish(ctx, realtime.Event{
			Type:       realtime.EventOfferRejected,
			Recipients: rejectedBy,
			JobID:      job.ID,
			Payload:    map[string]interface{}{"reason": "job_accepted"},
		})
	}
	return s.load(ctx, job.ID)
}

// Start moves an ACCEPTED job into IN_PROGRESS with its before photos.
// An empty photo list is accepted.
func (s *JobService) Start(ctx context.Context, actor *models.User, jobID uint, beforePhotos []string) (*models.Job, error) {
	job, err := s.find(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.IsAssignedTo(actor.ID) {
		return nil, apperrors.Forbidden("Only the assigned professional can start this job")
	}
	if job.Status != models.JobAccepted {
		return nil, apperrors.InvalidState("Only accepted jobs can be started")
	}
	photos, err := cleanPhotos(beforePhotos)
	if err != nil {
		return nil, err
	}

	res := s.conn(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", job.ID, models.JobAccepted).
		Updates(map[string]interface{}{
			"status":        models.JobInProgress,
			"before_photos": photos,
			"started_at":    now(),
		})
	if res.Error != nil {
		return nil, s.txError("Failed to start job", res.Error, job.ID)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.InvalidState("Job changed state while starting")
	}

	s.transitioned(ctx, job, models.JobInProgress, actor.ID, uintPtr(job.CustomerID), uintPtr(actor.ID))
	return s.load(ctx, job.ID)
}

// Complete finishes an IN_PROGRESS job. At least one after photo is required.
// The professional's escrow and lifetime earnings grow by the job price and
// an earning is written to the ledger in the same transaction.
func (s *JobService) Complete(ctx context.Context, actor *models.User, jobID uint, afterPhotos []string) (*models.Job, error) {
	job, err := s.find(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, apperrors.InvalidState("Job is already " + string(job.Status))
	}
	if !job.IsAssignedTo(actor.ID) {
		return nil, apperrors.Forbidden("Only the assigned professional can complete this job")
	}
	if job.Status != models.JobInProgress {
		return nil, apperrors.InvalidState("Only jobs in progress can be completed")
	}
	photos, err := cleanPhotos(afterPhotos)
	if err != nil {
		return nil, err
	}
	if len(photos) == 0 {
		return nil, apperrors.InvalidInput("at least one after photo is required")
	}

	amount := job.EarningAmount()
	err = s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Job{}).
			Where("id = ? AND status = ?", job.ID, models.JobInProgress).
			Updates(map[string]interface{}{
				"status":       models.JobCompleted,
				"after_photos": photos,
				"completed_at": now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.InvalidState("Job changed state while completing")
		}

		if err := adjustCounters(tx, actor.ID, map[string]interface{}{
			"escrow_balance": gorm.Expr("escrow_balance + ?", amount),
			"total_earnings": gorm.Expr("total_earnings + ?", amount),
			"pending_jobs":   decrementFloor("pending_jobs"),
			"completed_jobs": gorm.Expr("completed_jobs + 1"),
		}); err != nil {
			return err
		}

		if amount <= 0 {
			return nil
		}
		return tx.Create(&models.Transaction{
			UserID: actor.ID,
			JobID:  uintPtr(job.ID),
			Type:   models.TransactionEarning,
			Amount: amount,
			Status: models.TransactionCompleted,
		}).Error
	})
	if err != nil {
		return nil, s.txError("Failed to complete job", err, job.ID)
	}

	s.transitioned(ctx, job, models.JobCompleted, actor.ID, uintPtr(job.CustomerID), uintPtr(actor.ID))
	return s.load(ctx, job.ID)
}

// Cancel terminates a job that has not been completed. Either party may
// cancel; pending offers on the job are rejected with it.
func (s *JobService) Cancel(ctx context.Context, actor *models.User, jobID uint, in CancelInput) (*models.Job, error) {
	job, err := s.find(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, apperrors.InvalidState("Job is already " + string(job.Status))
	}
	if !job.IsParticipant(actor.ID) {
		return nil, apperrors.Forbidden("Only the job owner or the assigned professional can cancel this job")
	}
	if !job.Status.CanTransitionTo(models.JobCancelled) {
		return nil, apperrors.InvalidState("Completed jobs cannot be cancelled")
	}
	if in.Penalty < 0 {
		return nil, apperrors.InvalidInput("penalty must not be negative")
	}

	var rejectedBy []uint
	err = s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":         models.JobCancelled,
			"cancel_penalty": in.Penalty,
			"cancelled_at":   now(),
		}
		if reason := strings.TrimSpace(in.Reason); reason != "" {
			updates["cancel_reason"] = reason
		}
		res := tx.Model(&models.Job{}).
			Where("id = ? AND status IN ?", job.ID, []models.JobStatus{models.JobPending, models.JobAccepted, models.JobInProgress}).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.InvalidState("Job changed state while cancelling")
		}

		var err error
		rejectedBy, err = rejectPendingOffers(tx, job.ID, 0)
		if err != nil {
			return err
		}

		if job.ProfessionalID == nil {
			return nil
		}
		return adjustCounters(tx, *job.ProfessionalID, map[string]interface{}{
			"pending_jobs":   decrementFloor("pending_jobs"),
			"cancelled_jobs": gorm.Expr("cancelled_jobs + 1"),
		})
	})
	if err != nil {
		return nil, s.txError("Failed to cancel job", err, job.ID)
	}

	s.metrics.RecordOfferTransition(string(models.OfferRejected), len(rejectedBy))
	s.transitioned(ctx, job, models.JobCancelled, actor.ID, uintPtr(job.CustomerID), job.ProfessionalID)
	if len(rejectedBy) > 0 {
		s.publish(ctx, realtime.Event{
			Type:       realtime.EventOfferRejected,
			Recipients: rejectedBy,
			JobID:      job.ID,
			Payload:    map[string]interface{}{"reason": "job_cancelled"},
		})
	}
	return s.load(ctx, job.ID)
}

// Rate records the customer's review of a COMPLETED job, moves it to RATED
// and recomputes the professional's aggregate rating, all in one transaction.
// A job that already has a review answers Conflict for every caller; other
// terminal jobs answer InvalidState.
func (s *JobService) Rate(ctx context.Context, actor *models.User, jobID uint, in RateInput) (*models.Job, *models.Review, error) {
	job, err := s.find(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	var existing int64
	if err := s.conn(ctx).Model(&models.Review{}).Where("job_id = ?", job.ID).Count(&existing).Error; err != nil {
		return nil, nil, s.txError("Failed to look up review", err, job.ID)
	}
	if existing > 0 {
		return nil, nil, apperrors.Conflict("This job has already been rated")
	}
	if job.Status.Terminal() {
		return nil, nil, apperrors.InvalidState("Job is already " + string(job.Status))
	}
	if !job.IsOwnedBy(actor.ID) {
		return nil, nil, apperrors.Forbidden("Only the job owner can rate this job")
	}
	if job.Status != models.JobCompleted {
		return nil, nil, apperrors.InvalidState("Only completed jobs can be rated")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return nil, nil, apperrors.InvalidInput("rating must be between 1 and 5")
	}
	if job.ProfessionalID == nil {
		return nil, nil, apperrors.InvalidState("Job has no professional to rate")
	}

	review := models.Review{
		JobID:          job.ID,
		CustomerID:     actor.ID,
		ProfessionalID: *job.ProfessionalID,
		Rating:         in.Rating,
		Comment:        trimmedOrNil(in.Review),
	}
	err = s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&review).Error; err != nil {
			if apperrors.IsUniqueViolation(err) {
				return apperrors.Conflict("This job has already been rated")
			}
			return err
		}

		res := tx.Model(&models.Job{}).
			Where("id = ? AND status = ?", job.ID, models.JobCompleted).
			Updates(map[string]interface{}{
				"status":   models.JobRated,
				"rating":   in.Rating,
				"review":   review.Comment,
				"rated_at": now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.Conflict("Job changed state while rating")
		}

		return recomputeRating(tx, review.ProfessionalID)
	})
	if err != nil {
		return nil, nil, s.txError("Failed to rate job", err, job.ID)
	}

	s.metrics.RecordReview()
	s.transitioned(ctx, job, models.JobRated, actor.ID, uintPtr(job.CustomerID), job.ProfessionalID)
	s.publish(ctx, realtime.Event{
		Type:       realtime.EventReviewCreated,
		Recipients: []uint{review.ProfessionalID},
		JobID:      job.ID,
		Payload:    map[string]interface{}{"rating": review.Rating},
	})

	updated, err := s.load(ctx, job.ID)
	if err != nil {
		return nil, nil, err
	}
	return updated, &review, nil
}

// Delete removes a job with its offers, reviews, complaints and messages.
// Owners may delete only jobs that are PENDING or CANCELLED; admins may
// delete any job.
func (s *JobService) Delete(ctx context.Context, actor *models.User, jobID uint) error {
	job, err := s.find(ctx, jobID)
	if err != nil {
		return err
	}

	switch {
	case actor.Role == models.RoleAdmin:
	case job.IsOwnedBy(actor.ID):
		if job.Status != models.JobPending && job.Status != models.JobCancelled {
			return apperrors.InvalidState("Only pending or cancelled jobs can be deleted")
		}
	default:
		return apperrors.Forbidden("Only the job owner can delete this job")
	}

	var bidders []uint
	err = s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Offer{}).
			Where("job_id = ? AND status = ?", job.ID, models.OfferPending).
			Pluck("professional_id", &bidders).Error; err != nil {
			return err
		}
		if err := deleteJobs(tx, []uint{job.ID}); err != nil {
			return err
		}
		if job.ProfessionalID != nil && (job.Status == models.JobAccepted || job.Status == models.JobInProgress) {
			return adjustCounters(tx, *job.ProfessionalID, map[string]interface{}{
				"pending_jobs": decrementFloor("pending_jobs"),
			})
		}
		return nil
	})
	if err != nil {
		return s.txError("Failed to delete job", err, job.ID)
	}

	logger.Log.Info("Job deleted", zap.Uint("job_id", job.ID), zap.Uint("actor_id", actor.ID))
	recipients := append([]uint{}, bidders...)
	recipients = append(recipients, realtime.Recipients(uintPtr(job.CustomerID), job.ProfessionalID)...)
	s.publish(ctx, realtime.Event{
		Type:       realtime.EventJobDeleted,
		Recipients: recipients,
		JobID:      job.ID,
	})
	return nil
}

// AuthorizePhotoUpload checks that actor may attach photos to the job
func (s *JobService) AuthorizePhotoUpload(ctx context.Context, actor *models.User, jobID uint) (*models.Job, error) {
	job, err := s.find(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !job.IsAssignedTo(actor.ID) {
		return nil, apperrors.Forbidden("Only the assigned professional can upload job photos")
	}
	if job.Status != models.JobAccepted && job.Status != models.JobInProgress {
		return nil, apperrors.InvalidState("Photos can only be added to accepted or in-progress jobs")
	}
	return job, nil
}

func (s *JobService) visibleTo(ctx context.Context, actor *models.User, job *models.Job) (bool, error) {
	switch {
	case actor.Role == models.RoleAdmin, job.IsParticipant(actor.ID):
		return true, nil
	case actor.Role == models.RoleProfessional:
		if job.Status == models.JobPending {
			return true, nil
		}
		var n int64
		err := s.conn(ctx).Model(&models.Offer{}).
			Where("job_id = ? AND professional_id = ?", job.ID, actor.ID).
			Count(&n).Error
		if err != nil {
			logFailure("Failed to check job visibility", err, zap.Uint("job_id", job.ID))
			return false, apperrors.Internal(err)
		}
		return n > 0, nil
	}
	return false, nil
}

func (s *JobService) find(ctx context.Context, jobID uint) (*models.Job, error) {
	var job models.Job
	if err := s.conn(ctx).First(&job, jobID).Error; err != nil {
		return nil, apperrors.FromDB(err, "Job")
	}
	return &job, nil
}

func (s *JobService) load(ctx context.Context, jobID uint) (*models.Job, error) {
	var job models.Job
	err := s.conn(ctx).
		Preload("Customer").
		Preload("Professional").
		First(&job, jobID).Error
	if err != nil {
		return nil, apperrors.FromDB(err, "Job")
	}
	return &job, nil
}

func (s *JobService) transitioned(ctx context.Context, job *models.Job, to models.JobStatus, actorID uint, recipients ...*uint) {
	s.metrics.RecordJobTransition(string(to))
	logger.Log.Info("Job transitioned",
		zap.Uint("job_id", job.ID),
		zap.String("from", string(job.Status)),
		zap.String("to", string(to)),
		zap.Uint("actor_id", actorID),
	)
	s.publish(ctx, realtime.Event{
		Type:       realtime.EventJobUpdated,
		Recipients: realtime.Recipients(recipients...),
		JobID:      job.ID,
		Payload:    map[string]interface{}{"status": to},
	})
}

func (s *JobService) txError(msg string, err error, jobID uint) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	logFailure(msg, err, zap.Uint("job_id", jobID))
	return apperrors.FromDB(err, "Job")
}

// rejectPendingOffers rejects every PENDING offer of a job except keep and
// returns the ids of the professionals whose offers were rejected
func rejectPendingOffers(tx *gorm.DB, jobID, keep uint) ([]uint, error) {
	pending := func(db *gorm.DB) *gorm.DB {
		db = db.Where("job_id = ? AND status = ?", jobID, models.OfferPending)
		if keep != 0 {
			db = db.Where("id <> ?", keep)
		}
		return db
	}

	var professionals []uint
	if err := tx.Model(&models.Offer{}).Scopes(pending).Pluck("professional_id", &professionals).Error; err != nil {
		return nil, err
	}
	if len(professionals) == 0 {
		return nil, nil
	}

	err := tx.Model(&models.Offer{}).Scopes(pending).Updates(map[string]interface{}{
		"status":      models.OfferRejected,
		"rejected_at": now(),
	}).Error
	return professionals, err
}

// deleteJobs removes jobs and everything hanging off them. Ledger entries
// survive with their job reference cleared. Professionals who lose a review
// get their rating recomputed.
func deleteJobs(tx *gorm.DB, jobIDs []uint) error {
	if len(jobIDs) == 0 {
		return nil
	}
	var rated []uint
	if err := tx.Model(&models.Review{}).
		Where("job_id IN ?", jobIDs).
		Distinct().
		Pluck("professional_id", &rated).Error; err != nil {
		return err
	}
	steps := []func() error{
		func() error { return tx.Where("job_id IN ?", jobIDs).Delete(&models.Offer{}).Error },
		func() error { return tx.Where("job_id IN ?", jobIDs).Delete(&models.Review{}).Error },
		func() error { return tx.Where("job_id IN ?", jobIDs).Delete(&models.Complaint{}).Error },
		func() error { return tx.Unscoped().Where("job_id IN ?", jobIDs).Delete(&models.Message{}).Error },
		func() error {
			return tx.Model(&models.Transaction{}).Where("job_id IN ?", jobIDs).UpdateColumn("job_id", nil).Error
		},
		func() error { return tx.Where("id IN ?", jobIDs).Delete(&models.Job{}).Error },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return recomputeRatings(tx, rated)
}

// adjustCounters applies expression updates to a user's bookkeeping columns
func adjustCounters(tx *gorm.DB, userID uint, columns map[string]interface{}) error {
	return tx.Model(&models.User{}).Where("id = ?", userID).UpdateColumns(columns).Error
}

func decrementFloor(column string) interface{} {
	return gorm.Expr("CASE WHEN " + column + " > 0 THEN " + column + " - 1 ELSE 0 END")
}

func cleanPhotos(urls []string) (datatypes.JSONSlice[string], error) {
	if len(urls) > MaxPhotos {
		return nil, apperrors.InvalidInput("too many photos")
	}
	photos := make(datatypes.JSONSlice[string], 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			return nil, apperrors.InvalidInput("photo URLs must not be empty")
		}
		photos = append(photos, u)
	}
	return photos, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
