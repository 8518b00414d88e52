package controllers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/usta-go-api/utils"
)

// GetUploadedImage handles GET /api/v1/uploads/:filename - serves job photos
// stored by the local storage driver
func GetUploadedImage(c *gin.Context) {
	filename := c.Param("filename")

	// Validate filename is not empty
	if filename == "" {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_REQUEST", "Filename is required"))
		return
	}

	// Security: Prevent directory traversal attacks
	if !utils.IsSafeFilename(filename) {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_FILENAME", "Invalid filename"))
		return
	}

	contentType, ok := utils.ContentTypeFor(filename)
	if !ok {
		c.JSON(http.StatusBadRequest, errorBody("INVALID_FILE_TYPE", "Only PNG and JPEG files are supported"))
		return
	}

	filePath := filepath.Join(utils.UploadDir, filename)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		c.JSON(http.StatusNotFound, errorBody("FILE_NOT_FOUND", "Image not found"))
		return
	}

	c.Header("Content-Type", contentType)
	c.Header("Cache-Control", "public, max-age=86400") // Cache for 24 hours
	c.File(filePath)
}
