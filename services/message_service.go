package services

import (
	"context"
	"strings"

	"github.com/kendall-kelly/usta-go-api/apperrors"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/realtime"
	"go.uber.org/zap"
)

// MaxMessageLength bounds a single chat message
const MaxMessageLength = 4000

// MessageService carries the conversation between a job's customer and its
// assigned professional
type MessageService struct {
	base
}

// Send posts a message on a job
func (s *MessageService) Send(ctx context.Context, actor *models.User, jobID uint, text string) (*models.Message, error) {
	job, err := s.participantJob(ctx, actor, jobID, false)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.InvalidInput("text is required")
	}
	if len(text) > MaxMessageLength {
		return nil, apperrors.InvalidInput("message is too long")
	}

	message := models.Message{
		JobID:    job.ID,
		SenderID: actor.ID,
		Text:     text,
	}
	if err := s.conn(ctx).Create(&message).Error; err != nil {
		logFailure("Failed to create message", err, zap.Uint("job_id", job.ID))
		return nil, apperrors.Internal(err)
	}
	if err := s.conn(ctx).Preload("Sender").First(&message, message.ID).Error; err != nil {
		return nil, apperrors.FromDB(err, "Message")
	}

	s.publish(ctx, realtime.Event{
		Type:       realtime.EventMessageReceived,
		Recipients: realtime.Recipients(job.OtherParty(actor.ID)),
		JobID:      job.ID,
		Payload:    map[string]interface{}{"message_id": message.ID},
	})
	return &message, nil
}

// List returns a job's conversation in chronological order.
// Admins may read any conversation.
func (s *MessageService) List(ctx context.Context, actor *models.User, jobID uint) ([]models.Message, error) {
	job, err := s.participantJob(ctx, actor, jobID, true)
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	err = s.conn(ctx).
		Preload("Sender").
		Where("job_id = ?", job.ID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		logFailure("Failed to list messages", err, zap.Uint("job_id", job.ID))
		return nil, apperrors.Internal(err)
	}
	return messages, nil
}

func (s *MessageService) participantJob(ctx context.Context, actor *models.User, jobID uint, adminAllowed bool) (*models.Job, error) {
	var job models.Job
	if err := s.conn(ctx).First(&job, jobID).Error; err != nil {
		return nil, apperrors.FromDB(err, "Job")
	}
	if job.IsParticipant(actor.ID) || (adminAllowed && actor.Role == models.RoleAdmin) {
		return &job, nil
	}
	return nil, apperrors.Forbidden("You do not have permission to message on this job")
}
