package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sjperalta/fintera-prestamos/internal/engine"
	"github.com/sjperalta/fintera-prestamos/internal/services"
)

type ClassificationHandler struct {
	classificationService *services.ClassificationService
}

func NewClassificationHandler(classificationService *services.ClassificationService) *ClassificationHandler {
	return &ClassificationHandler{classificationService: classificationService}
}

// @Summary Run Classification
// @Description Reclassifies every client now and stores the ones that changed
// @Tags Classifications
// @Produce json
// @Success 200 {object} services.ClassificationSummary
// @Failure 500 {object} map[string]string
// @Router /classifications/run [post]
func (h *ClassificationHandler) Run(c *gin.Context) {
	summary, err := h.classificationService.UpdateAll(c.Request.Context())
	// clients that could not be evaluated are counted in the summary
	var classifyErr *engine.ClassifyError
	if err != nil && !errors.As(err, &classifyErr) {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
