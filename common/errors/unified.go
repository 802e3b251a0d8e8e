package errors

import (
	"github.com/gin-gonic/gin"
)

// HandleError writes err as an application/problem+json response.
func HandleError(c *gin.Context, err error) {
	pd := FromError(err, c.Request.URL.Path)
	if traceID := getTraceID(c); traceID != "" {
		pd.WithTraceID(traceID)
	}
	writeResponse(c, pd)
}

// BadRequest writes a validation problem with optional field errors.
func BadRequest(c *gin.Context, detail string, fieldErrors ...ValidationError) {
	pd := NewValidationError(detail, c.Request.URL.Path)
	pd.Errors = fieldErrors
	if traceID := getTraceID(c); traceID != "" {
		pd.WithTraceID(traceID)
	}
	writeResponse(c, pd)
}

// Unauthorized writes a 401 problem.
func Unauthorized(c *gin.Context, detail string) {
	writeResponse(c, NewUnauthorizedError(detail, c.Request.URL.Path))
}

func getTraceID(c *gin.Context) string {
	if traceID, exists := c.Get("trace_id"); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return c.GetHeader("X-Trace-ID")
}

func writeResponse(c *gin.Context, pd *ProblemDetails) {
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(pd.Status, pd)
}
