// Package services implements the marketplace lifecycle: jobs and their
// state machine, offers, the wallet ledger, reviews, complaints, job
// messages and principal management. Every operation takes the acting
// principal and returns *apperrors.AppError values that the HTTP layer maps
// onto responses. Notifications are published only after the owning
// database transaction commits.
package services

import (
	"context"
	"time"

	"github.com/kendall-kelly/usta-go-api/config"
	"github.com/kendall-kelly/usta-go-api/logger"
	"github.com/kendall-kelly/usta-go-api/metrics"
	"github.com/kendall-kelly/usta-go-api/realtime"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services bundles every domain service over one database handle
type Services struct {
	Users      *UserService
	Jobs       *JobService
	Offers     *OfferService
	Wallet     *WalletService
	Reviews    *ReviewService
	Complaints *ComplaintService
	Messages   *MessageService
	Tokens     *TokenService
}

// New wires the domain services. notifier and collector may be nil.
func New(db *gorm.DB, cfg *config.Config, notifier realtime.Notifier, collector *metrics.Collector) *Services {
	if notifier == nil {
		notifier = realtime.Nop{}
	}
	b := base{db: db, notifier: notifier, metrics: collector}

	minWithdrawal := cfg.MinWithdrawal
	if minWithdrawal <= 0 {
		minWithdrawal = config.DefaultMinWithdrawal
	}

	return &Services{
		Users:      &UserService{base: b},
		Jobs:       &JobService{base: b},
		Offers:     &OfferService{base: b},
		Wallet:     &WalletService{base: b, minWithdrawal: minWithdrawal},
		Reviews:    &ReviewService{base: b},
		Complaints: &ComplaintService{base: b},
		Messages:   &MessageService{base: b},
		Tokens:     NewTokenService(cfg.JWTSecret, cfg.TokenTTL),
	}
}

var servicesInstance *Services

// Init installs s as the process-wide services bundle and returns it
func Init(s *Services) *Services {
	servicesInstance = s
	return s
}

// Get returns the process-wide services bundle
func Get() *Services {
	return servicesInstance
}

type base struct {
	db       *gorm.DB
	notifier realtime.Notifier
	metrics  *metrics.Collector
}

func (b base) conn(ctx context.Context) *gorm.DB {
	return b.db.WithContext(ctx)
}

func (b base) publish(ctx context.Context, evt realtime.Event) {
	if len(evt.Recipients) == 0 {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	b.notifier.Publish(ctx, evt)
}

// logFailure records the cause of an internal error before it is masked at the boundary
func logFailure(msg string, err error, fields ...zap.Field) {
	logger.Log.Error(msg, append(fields, zap.Error(err))...)
}

func now() time.Time {
	return time.Now().UTC()
}

func uintPtr(v uint) *uint {
	return &v
}
