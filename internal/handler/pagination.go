package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/savannah-faces/data-service/internal/models"
	"github.com/savannah-faces/data-service/internal/repository"
)

const maxPageSize = 1000

// parsePage reads the optional limit and offset query parameters. The window
// only applies when both are given.
func parsePage(c *gin.Context) (repository.Page, error) {
	var page repository.Page

	if raw, ok := c.GetQuery("limit"); ok {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 || limit > maxPageSize {
			return page, models.NewValidationError("limit", "must be an integer between 0 and "+strconv.Itoa(maxPageSize))
		}
		page.Limit = &limit
	}

	if raw, ok := c.GetQuery("offset"); ok {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return page, models.NewValidationError("offset", "must be a non-negative integer")
		}
		page.Offset = &offset
	}

	return page, nil
}
