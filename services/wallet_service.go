package services

import (
	"context"
	"strings"
	"time"

	"github.com/kendall-kelly/usta-go-api/apperrors"
	"github.com/kendall-kelly/usta-go-api/logger"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/realtime"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletService derives balances from the transaction ledger and keeps the
// withdrawal workflow. Approving a withdrawal is what debits the balance.
type WalletService struct {
	base
	minWithdrawal float64
}

// WalletSummary is a professional's current position
type WalletSummary struct {
	TotalEarned        float64 `json:"total_earned"`
	TotalWithdrawn     float64 `json:"total_withdrawn"`
	PendingWithdrawals float64 `json:"pending_withdrawals"`
	Balance            float64 `json:"balance"`
	Available          float64 `json:"available"`
	EscrowBalance      float64 `json:"escrow_balance"`
	CompletedJobs      int64   `json:"completed_jobs"`
	MinWithdrawal      float64 `json:"min_withdrawal"`
}

// PeriodEarnings sums what was earned in one calendar month
type PeriodEarnings struct {
	Month int     `json:"month"`
	Year  int     `json:"year"`
	Total float64 `json:"total"`
	Jobs  int64   `json:"jobs"`
}

// WithdrawalInput is a payout request
type WithdrawalInput struct {
	Amount      float64
	BankDetails map[string]interface{}
}

// TransactionFilter narrows a ledger listing
type TransactionFilter struct {
	Type   models.TransactionType
	Status models.TransactionStatus
	Page   Page
}

// MinWithdrawal is the smallest amount a professional may withdraw
func (s *WalletService) MinWithdrawal() float64 {
	return s.minWithdrawal
}

// Summary computes the professional's balance from the ledger:
// balance = completed earnings minus completed withdrawals,
// available = balance minus pending withdrawals. Earnings outlive deleted jobs.
func (s *WalletService) Summary(ctx context.Context, actor *models.User) (*WalletSummary, error) {
	if actor.Role != models.RoleProfessional {
		return nil, apperrors.Forbidden("Only professionals have a wallet")
	}
	summary, err := s.summary(s.conn(ctx), actor.ID)
	if err != nil {
		logFailure("Failed to compute wallet", err, zap.Uint("user_id", actor.ID))
		return nil, apperrors.Internal(err)
	}
	summary.EscrowBalance = actor.EscrowBalance
	return summary, nil
}

// Earnings sums the professional's earnings for jobs completed in month/year
func (s *WalletService) Earnings(ctx context.Context, actor *models.User, month, year int) (*PeriodEarnings, error) {
	if actor.Role != models.RoleProfessional {
		return nil, apperrors.Forbidden("Only professionals have earnings")
	}
	if month < 1 || month > 12 {
		return nil, apperrors.InvalidInput("month must be between 1 and 12")
	}
	if year < 1 {
		return nil, apperrors.InvalidInput("year must be positive")
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	var row struct {
		Total float64
		Jobs  int64
	}
	err := s.earningJobs(s.conn(ctx), actor.ID).
		Where("completed_at >= ? AND completed_at < ?", from, to).
		Select("COALESCE(SUM(COALESCE(agreed_price, budget)), 0) AS total, COUNT(*) AS jobs").
		Scan(&row).Error
	if err != nil {
		logFailure("Failed to compute period earnings", err, zap.Uint("user_id", actor.ID))
		return nil, apperrors.Internal(err)
	}

	return &PeriodEarnings{Month: month, Year: year, Total: row.Total, Jobs: row.Jobs}, nil
}

// Transactions lists the caller's ledger, newest first
func (s *WalletService) Transactions(ctx context.Context, actor *models.User, f TransactionFilter) ([]models.Transaction, int64, error) {
	if actor.Role != models.RoleProfessional {
		return nil, 0, apperrors.Forbidden("Only professionals have a wallet")
	}
	return s.listTransactions(s.conn(ctx).Model(&models.Transaction{}).Where("user_id = ?", actor.ID), f)
}

// RequestWithdrawal records a pending payout. The amount must be at least
// the configured minimum and no more than the available balance.
func (s *WalletService) RequestWithdrawal(ctx context.Context, actor *models.User, in WithdrawalInput) (*models.Transaction, error) {
	if actor.Role != models.RoleProfessional {
		return nil, apperrors.Forbidden("Only professionals can request withdrawals")
	}
	if in.Amount <= 0 {
		return nil, apperrors.InvalidInput("amount must be greater than zero")
	}
	if in.Amount < s.minWithdrawal {
		return nil, apperrors.InvalidInput("amount is below the minimum withdrawal")
	}

	withdrawal := models.Transaction{
		UserID:      actor.ID,
		Type:        models.TransactionWithdrawal,
		Amount:      in.Amount,
		Status:      models.TransactionPending,
		BankDetails: datatypes.JSONMap(in.BankDetails),
	}

	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		// serialize concurrent requests from the same professional
		var locked models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&locked, actor.ID).Error; err != nil {
			return err
		}

		summary, err := s.summary(tx, actor.ID)
		if err != nil {
			return err
		}
		if in.Amount > summary.Available {
			return apperrors.InsufficientBalance("amount exceeds the available balance")
		}
		return tx.Create(&withdrawal).Error
	})
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return nil, err
		}
		logFailure("Failed to request withdrawal", err, zap.Uint("user_id", actor.ID))
		return nil, apperrors.FromDB(err, "Withdrawal")
	}

	s.metrics.RecordWithdrawal(string(models.TransactionPending))
	logger.Log.Info("Withdrawal requested",
		zap.Uint("transaction_id", withdrawal.ID),
		zap.Uint("user_id", actor.ID),
		zap.Float64("amount", in.Amount),
	)
	return &withdrawal, nil
}

// ListWithdrawals lists withdrawals for moderation. Admin only.
func (s *WalletService) ListWithdrawals(ctx context.Context, actor *models.User, f TransactionFilter) ([]models.Transaction, int64, error) {
	if actor.Role != models.RoleAdmin {
		return nil, 0, apperrors.Forbidden("Admin access required")
	}
	f.Type = models.TransactionWithdrawal
	return s.listTransactions(s.conn(ctx).Model(&models.Transaction{}), f)
}

// ApproveWithdrawal marks a pending withdrawal completed and debits the
// professional's escrow figure
func (s *WalletService) ApproveWithdrawal(ctx context.Context, actor *models.User, id uint, note string) (*models.Transaction, error) {
	return s.settle(ctx, actor, id, models.TransactionCompleted, note)
}

// RejectWithdrawal cancels a pending withdrawal, returning the amount to the
// available balance
func (s *WalletService) RejectWithdrawal(ctx context.Context, actor *models.User, id uint, note string) (*models.Transaction, error) {
	return s.settle(ctx, actor, id, models.TransactionCancelled, note)
}

func (s *WalletService) settle(ctx context.Context, actor *models.User, id uint, to models.TransactionStatus, note string) (*models.Transaction, error) {
	if actor.Role != models.RoleAdmin {
		return nil, apperrors.Forbidden("Admin access required")
	}

	var withdrawal models.Transaction
	err := s.conn(ctx).Where("id = ? AND type = ?", id, models.TransactionWithdrawal).First(&withdrawal).Error
	if err != nil {
		return nil, apperrors.FromDB(err, "Withdrawal")
	}
	if withdrawal.Status != models.TransactionPending {
		return nil, apperrors.InvalidState("Withdrawal is already " + string(withdrawal.Status))
	}

	err = s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":          to,
			"processed_by_id": actor.ID,
			"processed_at":    now(),
		}
		if note = strings.TrimSpace(note); note != "" {
			updates["note"] = note
		}
		res := tx.Model(&models.Transaction{}).
			Where("id = ? AND status = ?", withdrawal.ID, models.TransactionPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.InvalidState("Withdrawal changed state")
		}

		if to != models.TransactionCompleted {
			return nil
		}
		return adjustCounters(tx, withdrawal.UserID, map[string]interface{}{
			"escrow_balance": gorm.Expr("CASE WHEN escrow_balance > ? THEN escrow_balance - ? ELSE 0 END", withdrawal.Amount, withdrawal.Amount),
		})
	})
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return nil, err
		}
		logFailure("Failed to settle withdrawal", err, zap.Uint("transaction_id", id))
		return nil, apperrors.Internal(err)
	}

	s.metrics.RecordWithdrawal(string(to))
	logger.Log.Info("Withdrawal settled",
		zap.Uint("transaction_id", withdrawal.ID),
		zap.String("status", string(to)),
		zap.Uint("admin_id", actor.ID),
	)
	s.publish(ctx, realtime.Event{
		Type:       realtime.EventWithdrawal,
		Recipients: []uint{withdrawal.UserID},
		Payload:    map[string]interface{}{"transaction_id": withdrawal.ID, "status": to},
	})

	if err := s.conn(ctx).First(&withdrawal, withdrawal.ID).Error; err != nil {
		return nil, apperrors.FromDB(err, "Withdrawal")
	}
	return &withdrawal, nil
}

func (s *WalletService) summary(db *gorm.DB, userID uint) (*WalletSummary, error) {
	var completedJobs int64
	if err := s.earningJobs(db, userID).Count(&completedJobs).Error; err != nil {
		return nil, err
	}

	var ledger []struct {
		Type   models.TransactionType
		Status models.TransactionStatus
		Total  float64
	}
	err := db.Model(&models.Transaction{}).
		Select("type, status, COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ?", userID).
		Where("status IN ?", []models.TransactionStatus{models.TransactionPending, models.TransactionCompleted}).
		Group("type, status").
		Scan(&ledger).Error
	if err != nil {
		return nil, err
	}

	summary := &WalletSummary{
		CompletedJobs: completedJobs,
		MinWithdrawal: s.minWithdrawal,
	}
	for _, row := range ledger {
		switch {
		case row.Type == models.TransactionEarning && row.Status == models.TransactionCompleted:
			summary.TotalEarned = row.Total
		case row.Type == models.TransactionWithdrawal && row.Status == models.TransactionCompleted:
			summary.TotalWithdrawn = row.Total
		case row.Type == models.TransactionWithdrawal && row.Status == models.TransactionPending:
			summary.PendingWithdrawals = row.Total
		}
	}
	summary.Balance = summary.TotalEarned - summary.TotalWithdrawn
	summary.Available = summary.Balance - summary.PendingWithdrawals
	return summary, nil
}

func (s *WalletService) earningJobs(db *gorm.DB, userID uint) *gorm.DB {
	return db.Model(&models.Job{}).
		Where("professional_id = ? AND status IN ?", userID, models.EarningStatuses())
}

func (s *WalletService) listTransactions(query *gorm.DB, f TransactionFilter) ([]models.Transaction, int64, error) {
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		logFailure("Failed to count transactions", err)
		return nil, 0, apperrors.Internal(err)
	}

	page := f.Page.Normalize()
	var txns []models.Transaction
	err := query.Order("created_at DESC, id DESC").Offset(page.Offset()).Limit(page.Limit).Find(&txns).Error
	if err != nil {
		logFailure("Failed to list transactions", err)
		return nil, 0, apperrors.Internal(err)
	}
	return txns, total, nil
}
