package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/kendall-kelly/usta-go-api/apperrors"
	"github.com/kendall-kelly/usta-go-api/logger"
	"github.com/kendall-kelly/usta-go-api/middleware"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/services"
	"go.uber.org/zap"
)

func errorBody(code, message string) gin.H {
	return gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// respondError writes the envelope for a service error. Internal causes are
// logged and never reach the client.
func respondError(c *gin.Context, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Internal(err)
	}

	message := appErr.Message
	if appErr.Kind == apperrors.KindInternal {
		logger.Log.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		message = "Internal server error"
	}

	c.JSON(appErr.HTTPStatus(), errorBody(string(appErr.Kind), message))
}

// respondValidation answers a request body that failed binding as INVALID_INPUT
func respondValidation(c *gin.Context, err error) {
	body := gin.H{
		"code":    string(apperrors.KindInvalidInput),
		"message": "Invalid request body",
		"details": err.Error(),
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		body["fields"] = fields
	}

	c.JSON(apperrors.StatusFor(apperrors.KindInvalidInput), gin.H{"success": false, "error": body})
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func respondPage(c *gin.Context, data interface{}, page services.Page, total int64) {
	p := page.Normalize()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
		"pagination": gin.H{
			"page":       p.Page,
			"limit":      p.Limit,
			"total":      total,
			"totalPages": p.TotalPages(total),
		},
	})
}

// pageFromQuery reads ?page= and ?limit=; malformed values fall back to the defaults
func pageFromQuery(c *gin.Context) services.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultPageLimit)))
	return services.Page{Page: page, Limit: limit}.Normalize()
}

// paramID parses a numeric path parameter. It writes the 400 itself.
func paramID(c *gin.Context, name, what string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_ID", "Invalid "+what+" ID"))
		return 0, false
	}
	return uint(id), true
}

// currentUser returns the principal loaded by middleware.LoadPrincipal
func currentUser(c *gin.Context) (*models.User, bool) {
	user, err := middleware.GetPrincipal(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "Could not identify the current user"))
		return nil, false
	}
	return user, true
}

// bindOptionalJSON binds the body when one was sent. Empty bodies leave req untouched.
func bindOptionalJSON(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		respondValidation(c, err)
		return false
	}
	return true
}
