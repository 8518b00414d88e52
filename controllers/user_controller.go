package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/usta-go-api/apperrors"
	"github.com/kendall-kelly/usta-go-api/config"
	"github.com/kendall-kelly/usta-go-api/logger"
	"github.com/kendall-kelly/usta-go-api/middleware"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/services"
	"go.uber.org/zap"
)

// CreateUserRequest optionally names the role picked at sign-up
type CreateUserRequest struct {
	Role string `json:"role"`
}

// UpdateUserRequest represents the request body for updating a user profile
type UpdateUserRequest struct {
	Name  *string `json:"name" binding:"omitempty,notblank,max=100"`
	Email *string `json:"email" binding:"omitempty,email"`
	Phone *string `json:"phone" binding:"omitempty,max=30"`
	Bio   *string `json:"bio" binding:"omitempty,max=2000"`
}

// CreateUser handles POST /api/v1/users - creates a new user from Auth0 userinfo
// This endpoint requires authentication and fetches user data from Auth0's /userinfo endpoint
func CreateUser(c *gin.Context) {
	// Get the Auth0 user ID from the validated JWT
	subject, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "Could not extract user ID from token"))
		return
	}

	// Get the access token to call Auth0's /userinfo endpoint
	accessToken, err := middleware.GetAccessToken(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorBody("MISSING_TOKEN", "Access token not found"))
		return
	}

	var req CreateUserRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	role := models.Role(req.Role)
	if role == "" {
		role = middleware.GetTokenRole(c)
	}

	// Fetch user info from Auth0
	auth0Service := services.NewAuth0Service(config.GetConfig())
	userInfo, err := auth0Service.GetUserInfo(c.Request.Context(), accessToken)
	if err != nil {
		logger.Log.Warn("Failed to fetch user info", zap.String("subject", subject), zap.Error(err))
		c.JSON(http.StatusBadGateway, errorBody("AUTH0_ERROR", "Failed to fetch user information from Auth0"))
		return
	}

	user, err := services.Get().Users.CreateProfile(c.Request.Context(), subject, userInfo, role)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindConflict) {
			c.JSON(http.StatusConflict, errorBody("USER_EXISTS", "A user with this Auth0 ID or email already exists"))
			return
		}
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, user)
}

// GetMyProfile handles GET /api/v1/users/me - gets current user's profile
func GetMyProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	respondOK(c, http.StatusOK, user)
}

// UpdateMyProfile handles PUT /api/v1/users/me - updates current user's profile
// Role, rating and wallet figures cannot be changed here.
func UpdateMyProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	updated, err := services.Get().Users.UpdateProfile(c.Request.Context(), user, services.UpdateProfileInput{
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
		Bio:   req.Bio,
	})
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindConflict) {
			c.JSON(http.StatusConflict, errorBody("EMAIL_EXISTS", "A user with this email already exists"))
			return
		}
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, updated)
}

// GetUser handles GET /api/v1/users/:id - public profile of any user
func GetUser(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	userID, ok := paramID(c, "id", "user")
	if !ok {
		return
	}

	user, err := services.Get().Users.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, user)
}

// ListProfessionalReviews handles GET /api/v1/users/:id/reviews
func ListProfessionalReviews(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	userID, ok := paramID(c, "id", "user")
	if !ok {
		return
	}

	page := pageFromQuery(c)
	reviews, total, err := services.Get().Reviews.ListByProfessional(c.Request.Context(), userID, page)
	if err != nil {
		respondError(c, err)
		return
	}

	respondPage(c, reviews, page, total)
}
