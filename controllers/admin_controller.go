package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/services"
)

// ListUsers handles GET /api/v1/admin/users?role=&status=
func ListUsers(c *gin.Context) {
	admin, ok := currentUser(c)
	if !ok {
		return
	}

	page := pageFromQuery(c)
	users, total, err := services.Get().Users.List(c.Request.Context(), admin, services.UserFilter{
		Role:   models.Role(c.Query("role")),
		Status: models.UserStatus(c.Query("status")),
		Page:   page,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondPage(c, users, page, total)
}

// BanUser handles POST /api/v1/admin/users/:id/ban
func BanUser(c *gin.Context) {
	setUserStatus(c, true)
}

// UnbanUser handles POST /api/v1/admin/users/:id/unban
func UnbanUser(c *gin.Context) {
	setUserStatus(c, false)
}

func setUserStatus(c *gin.Context, ban bool) {
	admin, ok := currentUser(c)
	if !ok {
		return
	}
	userID, ok := paramID(c, "id", "user")
	if !ok {
		return
	}

	users := services.Get().Users
	var (
		user *models.User
		err  error
	)
	if ban {
		user, err = users.Ban(c.Request.Context(), admin, userID)
	} else {
		user, err = users.Unban(c.Request.Context(), admin, userID)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, user)
}

// DeleteUser handles DELETE /api/v1/admin/users/:id
// Removes the user with every job they took part in.
func DeleteUser(c *gin.Context) {
	admin, ok := currentUser(c)
	if !ok {
		return
	}
	userID, ok := paramID(c, "id", "user")
	if !ok {
		return
	}

	if err := services.Get().Users.Delete(c.Request.Context(), admin, userID); err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{"id": userID, "deleted": true})
}
