package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/savannah-faces/data-service/internal/models"
	"github.com/savannah-faces/data-service/internal/service"
	"go.uber.org/zap"
)

type ImageLabelHandler struct {
	labels *service.ImageLabelService
	log    *zap.Logger
}

func NewImageLabelHandler(labels *service.ImageLabelService, log *zap.Logger) *ImageLabelHandler {
	return &ImageLabelHandler{labels: labels, log: log}
}

// Create labels an image by name.
// POST /images/label
func (h *ImageLabelHandler) Create(c *gin.Context) {
	var in models.ImageLabelCreate
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	label, err := h.labels.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, label)
}

// GET /labels?limit=&offset=
func (h *ImageLabelHandler) List(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	labels, err := h.labels.List(c.Request.Context(), page)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, labels)
}

// GET /labels/:id
func (h *ImageLabelHandler) Get(c *gin.Context) {
	label, err := h.labels.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, label)
}

// PATCH /labels/:id
func (h *ImageLabelHandler) Update(c *gin.Context) {
	var upd models.ImageLabelUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	label, err := h.labels.Update(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, label)
}

// DELETE /labels/:id
func (h *ImageLabelHandler) Delete(c *gin.Context) {
	if err := h.labels.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
