package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/usta-go-api/apperrors"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/services"
)

// RegisterRequest represents a password sign-up
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,notblank,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	Phone    string `json:"phone" binding:"max=30"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register handles POST /api/v1/auth/register
// Customers and professionals may sign up; admins are created with the promote command.
func Register(c *gin.Context) {
	tokens := services.Get().Tokens
	if !tokens.Enabled() {
		c.JSON(http.StatusNotFound, errorBody("LOCAL_AUTH_DISABLED", "Password sign-up is not enabled"))
		return
	}

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	user, err := services.Get().Users.Register(c.Request.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Role:     models.Role(req.Role),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondWithToken(c, http.StatusCreated, tokens, user)
}

// Login handles POST /api/v1/auth/login
func Login(c *gin.Context) {
	tokens := services.Get().Tokens
	if !tokens.Enabled() {
		c.JSON(http.StatusNotFound, errorBody("LOCAL_AUTH_DISABLED", "Password login is not enabled"))
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	user, err := services.Get().Users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	respondWithToken(c, http.StatusOK, tokens, user)
}

func respondWithToken(c *gin.Context, status int, tokens *services.TokenService, user *models.User) {
	token, expiresAt, err := tokens.Issue(user)
	if err != nil {
		respondError(c, apperrors.Internal(err))
		return
	}

	respondOK(c, status, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
		"user":       user,
	})
}
