package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/savannah-faces/data-service/internal/models"
	"github.com/savannah-faces/data-service/internal/service"
	"go.uber.org/zap"
)

type ImageHandler struct {
	images         *service.ImageService
	maxUploadBytes int64
	log            *zap.Logger
}

func NewImageHandler(images *service.ImageService, maxUploadBytes int64, log *zap.Logger) *ImageHandler {
	return &ImageHandler{
		images:         images,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

// Upload stores the multipart "file" field as a new unlabelled image.
// POST /images/upload
func (h *ImageHandler) Upload(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "File too large",
			})
			return
		}
		badRequest(c, "A file is required in the \"file\" field")
		return
	}

	file, err := header.Open()
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	defer file.Close()

	result, err := h.images.Upload(c.Request.Context(), service.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// List returns images oldest first, each with its label when it has one.
// GET /images?limit=&offset=
func (h *ImageHandler) List(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	images, err := h.images.List(c.Request.Context(), page)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, images)
}

// Next returns the oldest image still waiting for a label.
// GET /images/next
func (h *ImageHandler) Next(c *gin.Context) {
	image, err := h.images.NextUnlabelled(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, image)
}

// GET /images/:id
func (h *ImageHandler) Get(c *gin.Context) {
	image, err := h.images.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, image)
}

// GET /images/by-name/:name
func (h *ImageHandler) GetByName(c *gin.Context) {
	image, err := h.images.GetByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, image)
}

// PATCH /images/:id
func (h *ImageHandler) Update(c *gin.Context) {
	var upd models.ImageUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	image, err := h.images.Update(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, image)
}

// DELETE /images/:id
func (h *ImageHandler) Delete(c *gin.Context) {
	if err := h.images.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
