package response

import (
	"swapstation/internal/shared/apperr"

	"github.com/gin-gonic/gin"
)

func RespondJSON(c *gin.Context, status string, code int, message string, data interface{}, errors interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:     status,
		StatusCode: code,
		Message:    message,
		Data:       data,
		Errors:     errors,
	})
}

// RespondError writes err with the status code of its kind.
func RespondError(c *gin.Context, message string, err error) {
	RespondJSON(c, "error", apperr.HTTPStatus(err), message, nil, ErrorDetail{
		Kind:   apperr.Kind(err),
		Detail: err.Error(),
	})
}
