package services

import (
	"time"

	"github.com/kendall-kelly/usta-go-api/apperrors"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/realtime"
)

func (s *ServiceSuite) withdraw(pro *models.User, amount float64) *models.Transaction {
	tx, err := s.svc.Wallet.RequestWithdrawal(s.ctx, pro, WithdrawalInput{
		Amount:      amount,
		BankDetails: map[string]interface{}{"iban": "TR000000000000000000000000"},
	})
	s.Require().NoError(err)
	return tx
}

func (s *ServiceSuite) TestWalletSummary_CountsCompletedAndRatedJobs() {
	customer, pro := s.customer(), s.professional()
	s.completedJob(customer, pro, 300)
	rated := s.completedJob(customer, pro, 200)
	_, _, err := s.svc.Jobs.Rate(s.ctx, customer, rated.ID, RateInput{Rating: 5})
	s.Require().NoError(err)
	s.inProgressJob(customer, pro, 1000)

	summary, err := s.svc.Wallet.Summary(s.ctx, s.reloadUser(pro.ID))
	s.Require().NoError(err)
	s.InDelta(500, summary.TotalEarned, 0.001)
	s.InDelta(500, summary.Balance, 0.001)
	s.InDelta(500, summary.Available, 0.001)
	s.InDelta(500, summary.EscrowBalance, 0.001)
	s.Equal(int64(2), summary.CompletedJobs)
	s.InDelta(100, summary.MinWithdrawal, 0.001)

	_, err = s.svc.Wallet.Summary(s.ctx, customer)
	s.requireKind(err, apperrors.KindForbidden)
}

func (s *ServiceSuite) TestRequestWithdrawal() {
	customer, pro := s.customer(), s.professional()
	s.completedJob(customer, pro, 500)

	pending := s.withdraw(pro, 200)
	s.Equal(models.TransactionPending, pending.Status)
	s.Equal(models.TransactionWithdrawal, pending.Type)
	s.NotEmpty(pending.Reference)
	s.Equal("TR000000000000000000000000", pending.BankDetails["iban"])

	summary, err := s.svc.Wallet.Summary(s.ctx, pro)
	s.Require().NoError(err)
	s.InDelta(500, summary.Balance, 0.001)
	s.InDelta(200, summary.PendingWithdrawals, 0.001)
	s.InDelta(300, summary.Available, 0.001)

	// pending requests hold their amount
	_, err = s.svc.Wallet.RequestWithdrawal(s.ctx, pro, WithdrawalInput{Amount: 301})
	s.requireKind(err, apperrors.KindInsufficientBalance)

	s.withdraw(pro, 300)
	summary, err = s.svc.Wallet.Summary(s.ctx, pro)
	s.Require().NoError(err)
	s.InDelta(0, summary.Available, 0.001)
}

func (s *ServiceSuite) TestRequestWithdrawal_Rules() {
	customer, pro := s.customer(), s.professional()

	_, err := s.svc.Wallet.RequestWithdrawal(s.ctx, customer, WithdrawalInput{Amount: 200})
	s.requireKind(err, apperrors.KindForbidden)

	for _, amount := range []float64{0, -10, 99.99} {
		_, err = s.svc.Wallet.RequestWithdrawal(s.ctx, pro, WithdrawalInput{Amount: amount})
		s.requireKind(err, apperrors.KindInvalidInput)
	}

	_, err = s.svc.Wallet.RequestWithdrawal(s.ctx, pro, WithdrawalInput{Amount: 100})
	s.requireKind(err, apperrors.KindInsufficientBalance)

	s.completedJob(customer, pro, 150)
	_, err = s.svc.Wallet.RequestWithdrawal(s.ctx, pro, WithdrawalInput{Amount: 150.01})
	s.requireKind(err, apperrors.KindInsufficientBalance)
	s.withdraw(pro, 150)

	var count int64
	s.db.Model(&models.Transaction{}).Where("type = ?", models.TransactionWithdrawal).Count(&count)
	s.Equal(int64(1), count)
}

func (s *ServiceSuite) TestApproveWithdrawal_DebitsBalance() {
	customer, pro, admin := s.customer(), s.professional(), s.admin()
	s.completedJob(customer, pro, 500)
	pending := s.withdraw(pro, 200)

	_, err := s.svc.Wallet.ApproveWithdrawal(s.ctx, pro, pending.ID, "")
	s.requireKind(err, apperrors.KindForbidden)

	approved, err := s.svc.Wallet.ApproveWithdrawal(s.ctx, admin, pending.ID, " paid ")
	s.Require().NoError(err)
	s.Equal(models.TransactionCompleted, approved.Status)
	s.Equal(admin.ID, *approved.ProcessedByID)
	s.NotNil(approved.ProcessedAt)
	s.Equal("paid", *approved.Note)

	stored := s.reloadUser(pro.ID)
	s.InDelta(300, stored.EscrowBalance, 0.001)
	s.InDelta(500, stored.TotalEarnings, 0.001)

	summary, err := s.svc.Wallet.Summary(s.ctx, stored)
	s.Require().NoError(err)
	s.InDelta(200, summary.TotalWithdrawn, 0.001)
	s.InDelta(300, summary.Balance, 0.001)
	s.InDelta(300, summary.Available, 0.001)

	_, err = s.svc.Wallet.RejectWithdrawal(s.ctx, admin, pending.ID, "")
	s.requireKind(err, apperrors.KindInvalidState)

	updates := s.events.OfType(realtime.EventWithdrawal)
	s.Require().Len(updates, 1)
	s.Equal([]uint{pro.ID}, updates[0].Recipients)
}

func (s *ServiceSuite) TestRejectWithdrawal_ReleasesAmount() {
	customer, pro, admin := s.customer(), s.professional(), s.admin()
	s.completedJob(customer, pro, 500)
	pending := s.withdraw(pro, 400)

	rejected, err := s.svc.Wallet.RejectWithdrawal(s.ctx, admin, pending.ID, "bank details invalid")
	s.Require().NoError(err)
	s.Equal(models.TransactionCancelled, rejected.Status)

	summary, err := s.svc.Wallet.Summary(s.ctx, s.reloadUser(pro.ID))
	s.Require().NoError(err)
	s.InDelta(500, summary.Available, 0.001)
	s.InDelta(500, summary.EscrowBalance, 0.001)

	_, err = s.svc.Wallet.ApproveWithdrawal(s.ctx, admin, 9999, "")
	s.requireKind(err, apperrors.KindNotFound)
}

func (s *ServiceSuite) TestEarningsForPeriod() {
	customer, pro := s.customer(), s.professional()
	march := s.completedJob(customer, pro, 300)
	april := s.completedJob(customer, pro, 200)
	s.completedJob(customer, pro, 50)

	s.Require().NoError(s.db.Model(&models.Job{}).Where("id = ?", march.ID).
		Update("completed_at", time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)).Error)
	s.Require().NoError(s.db.Model(&models.Job{}).Where("id = ?", april.ID).
		Update("completed_at", time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)).Error)

	earned, err := s.svc.Wallet.Earnings(s.ctx, pro, 3, 2026)
	s.Require().NoError(err)
	s.InDelta(300, earned.Total, 0.001)
	s.Equal(int64(1), earned.Jobs)

	earned, err = s.svc.Wallet.Earnings(s.ctx, pro, 4, 2026)
	s.Require().NoError(err)
	s.InDelta(200, earned.Total, 0.001)

	earned, err = s.svc.Wallet.Earnings(s.ctx, pro, 1, 2020)
	s.Require().NoError(err)
	s.Zero(earned.Total)
	s.Zero(earned.Jobs)

	_, err = s.svc.Wallet.Earnings(s.ctx, pro, 13, 2026)
	s.requireKind(err, apperrors.KindInvalidInput)
	_, err = s.svc.Wallet.Earnings(s.ctx, customer, 3, 2026)
	s.requireKind(err, apperrors.KindForbidden)
}

func (s *ServiceSuite) TestTransactionsAndWithdrawalListing() {
	customer, pro, admin := s.customer(), s.professional(), s.admin()
	s.completedJob(customer, pro, 500)
	s.withdraw(pro, 150)

	txns, total, err := s.svc.Wallet.Transactions(s.ctx, pro, TransactionFilter{})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Len(txns, 2)

	txns, total, err = s.svc.Wallet.Transactions(s.ctx, pro, TransactionFilter{Type: models.TransactionEarning})
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Equal(models.TransactionEarning, txns[0].Type)

	withdrawals, total, err := s.svc.Wallet.ListWithdrawals(s.ctx, admin, TransactionFilter{Status: models.TransactionPending})
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.InDelta(150, withdrawals[0].Amount, 0.001)

	_, _, err = s.svc.Wallet.ListWithdrawals(s.ctx, pro, TransactionFilter{})
	s.requireKind(err, apperrors.KindForbidden)
}

// Deleting paid-out work must not take the earning back out of the balance
func (s *ServiceSuite) TestWalletSurvivesDeletedJobs() {
	customer, pro, admin := s.customer(), s.professional(), s.admin()
	paid := s.completedJob(customer, pro, 500)
	approved, err := s.svc.Wallet.ApproveWithdrawal(s.ctx, admin, s.withdraw(pro, 400).ID, "")
	s.Require().NoError(err)
	s.Equal(models.TransactionCompleted, approved.Status)

	s.Require().NoError(s.svc.Jobs.Delete(s.ctx, admin, paid.ID))

	stored := s.reloadUser(pro.ID)
	summary, err := s.svc.Wallet.Summary(s.ctx, stored)
	s.Require().NoError(err)
	s.InDelta(500, summary.TotalEarned, 0.001)
	s.InDelta(100, summary.Balance, 0.001)
	s.InDelta(100, summary.Available, 0.001)
	s.InDelta(stored.EscrowBalance, summary.Balance, 0.001)
	s.InDelta(500, stored.TotalEarnings, 0.001)
	s.Zero(summary.CompletedJobs)

	// the customer leaving takes their jobs but not the professional's earnings
	second := s.completedJob(customer, pro, 300)
	s.NotZero(second.ID)
	s.Require().NoError(s.svc.Users.Delete(s.ctx, admin, customer.ID))

	summary, err = s.svc.Wallet.Summary(s.ctx, s.reloadUser(pro.ID))
	s.Require().NoError(err)
	s.InDelta(400, summary.Balance, 0.001)
	s.GreaterOrEqual(summary.Available, 0.0)
}
