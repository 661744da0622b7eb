package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"logistics-service/internal/models"
	"logistics-service/internal/services"
)

// statusForKind maps engine error kinds to HTTP status codes
func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindNotFound, services.KindNoApplicableRate:
		return http.StatusNotFound
	case services.KindValidation, services.KindInvalidSelection:
		return http.StatusBadRequest
	case services.KindInvalidStateTransition, services.KindNotOrdered, services.KindOverlapConflict:
		return http.StatusConflict
	case services.KindWeightExceedsMax:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the standard error envelope for a service error
func respondError(c *gin.Context, err error) {
	kind := services.KindOf(err)
	message := err.Error()
	if kind == services.KindInternal {
		// Internal details stay in the logs
		message = "Internal server error"
	}
	c.JSON(statusForKind(kind), models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    string(kind),
			Message: message,
		},
	})
}

// respondBindError writes the envelope for a request that failed binding
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "VALIDATION_ERROR",
			Message: err.Error(),
		},
	})
}

// respondBadID writes the envelope for an unparseable UUID path parameter
func respondBadID(c *gin.Context, param string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid " + param,
		},
	})
}
