package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/usta-go-api/apperrors"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/services"
)

// WithdrawalRequest represents a professional's payout request
type WithdrawalRequest struct {
	Amount      float64                `json:"amount" binding:"required,gt=0"`
	BankDetails map[string]interface{} `json:"bank_details" binding:"required"`
}

// SettleRequest carries an optional admin note
type SettleRequest struct {
	Note string `json:"note" binding:"max=500"`
}

// GetWallet handles GET /api/v1/wallet
func GetWallet(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	summary, err := services.Get().Wallet.Summary(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, summary)
}

// GetEarnings handles GET /api/v1/wallet/earnings?month=&year=
// Both default to the current UTC month.
func GetEarnings(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	now := time.Now().UTC()
	month, err := strconv.Atoi(c.DefaultQuery("month", strconv.Itoa(int(now.Month()))))
	if err != nil {
		respondError(c, apperrors.InvalidInput("month must be a number"))
		return
	}
	year, err := strconv.Atoi(c.DefaultQuery("year", strconv.Itoa(now.Year())))
	if err != nil {
		respondError(c, apperrors.InvalidInput("year must be a number"))
		return
	}

	earnings, err := services.Get().Wallet.Earnings(c.Request.Context(), user, month, year)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, earnings)
}

// ListTransactions handles GET /api/v1/wallet/transactions
func ListTransactions(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	page := pageFromQuery(c)
	txns, total, err := services.Get().Wallet.Transactions(c.Request.Context(), user, transactionFilter(c, page))
	if err != nil {
		respondError(c, err)
		return
	}

	respondPage(c, txns, page, total)
}

// RequestWithdrawal handles POST /api/v1/wallet/withdrawals
func RequestWithdrawal(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	txn, err := services.Get().Wallet.RequestWithdrawal(c.Request.Context(), user, services.WithdrawalInput{
		Amount:      req.Amount,
		BankDetails: req.BankDetails,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, txn)
}

// ListWithdrawals handles GET /api/v1/admin/withdrawals
func ListWithdrawals(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	page := pageFromQuery(c)
	txns, total, err := services.Get().Wallet.ListWithdrawals(c.Request.Context(), user, transactionFilter(c, page))
	if err != nil {
		respondError(c, err)
		return
	}

	respondPage(c, txns, page, total)
}

// ApproveWithdrawal handles POST /api/v1/admin/withdrawals/:id/approve
func ApproveWithdrawal(c *gin.Context) {
	settleWithdrawal(c, services.Get().Wallet.ApproveWithdrawal)
}

// RejectWithdrawal handles POST /api/v1/admin/withdrawals/:id/reject
func RejectWithdrawal(c *gin.Context) {
	settleWithdrawal(c, services.Get().Wallet.RejectWithdrawal)
}

type withdrawalSettlement func(ctx context.Context, actor *models.User, id uint, note string) (*models.Transaction, error)

func settleWithdrawal(c *gin.Context, settle withdrawalSettlement) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	txnID, ok := paramID(c, "id", "withdrawal")
	if !ok {
		return
	}

	var req SettleRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	txn, err := settle(c.Request.Context(), user, txnID, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, txn)
}

func transactionFilter(c *gin.Context, page services.Page) services.TransactionFilter {
	return services.TransactionFilter{
		Type:   models.TransactionType(c.Query("type")),
		Status: models.TransactionStatus(c.Query("status")),
		Page:   page,
	}
}
