package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/services"
)

// CreateOfferRequest represents a professional's bid on a job
type CreateOfferRequest struct {
	Price   float64 `json:"price" binding:"required,gt=0"`
	Message *string `json:"message" binding:"omitempty,max=1000"`
}

// CreateOffer handles POST /api/v1/jobs/:id/offers
func CreateOffer(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	jobID, ok := paramID(c, "id", "job")
	if !ok {
		return
	}

	var req CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	offer, err := services.Get().Offers.Create(c.Request.Context(), user, jobID, services.CreateOfferInput{
		Price:   req.Price,
		Message: req.Message,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, offer)
}

// ListJobOffers handles GET /api/v1/jobs/:id/offers
func ListJobOffers(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	jobID, ok := paramID(c, "id", "job")
	if !ok {
		return
	}

	page := pageFromQuery(c)
	offers, total, err := services.Get().Offers.ListForJob(c.Request.Context(), user, jobID, services.OfferFilter{
		Status: models.OfferStatus(c.Query("status")),
		Page:   page,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondPage(c, offers, page, total)
}

// ListMyOffers handles GET /api/v1/offers/mine
func ListMyOffers(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	page := pageFromQuery(c)
	offers, total, err := services.Get().Offers.ListMine(c.Request.Context(), user, services.OfferFilter{
		Status: models.OfferStatus(c.Query("status")),
		Page:   page,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondPage(c, offers, page, total)
}

// GetOffer handles GET /api/v1/offers/:id
func GetOffer(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	offerID, ok := paramID(c, "id", "offer")
	if !ok {
		return
	}

	offer, err := services.Get().Offers.Get(c.Request.Context(), user, offerID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, offer)
}

// AcceptOffer handles POST /api/v1/offers/:id/accept
// The job moves to IN_PROGRESS and every competing pending offer is rejected.
func AcceptOffer(c *gin.Context) {
	offerAction(c, services.Get().Offers.Accept)
}

// RejectOffer handles POST /api/v1/offers/:id/reject
func RejectOffer(c *gin.Context) {
	offerAction(c, services.Get().Offers.Reject)
}

// WithdrawOffer handles POST /api/v1/offers/:id/withdraw
func WithdrawOffer(c *gin.Context) {
	offerAction(c, services.Get().Offers.Withdraw)
}

type offerTransition func(ctx context.Context, actor *models.User, offerID uint) (*models.Offer, error)

func offerAction(c *gin.Context, transition offerTransition) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	offerID, ok := paramID(c, "id", "offer")
	if !ok {
		return
	}

	offer, err := transition(c.Request.Context(), user, offerID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, offer)
}
