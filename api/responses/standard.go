// Package responses writes the success envelopes of the HTTP API. Errors
// are written by common/errors as problem+json.
package responses

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StandardResponse wraps every successful payload.
type StandardResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// ListResponse is a StandardResponse over a page of items.
type ListResponse struct {
	StandardResponse
	Page *PageMeta `json:"page,omitempty"`
}

// PageMeta describes the window a list response covers.
type PageMeta struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// Success sends a 200 response.
func Success(c *gin.Context, data interface{}, message ...string) {
	c.JSON(http.StatusOK, envelope(c, data, "Operation successful", message))
}

// Created sends a 201 response.
func Created(c *gin.Context, data interface{}, message ...string) {
	c.JSON(http.StatusCreated, envelope(c, data, "Resource created successfully", message))
}

// List sends a 200 response for a page of count items.
func List(c *gin.Context, data interface{}, limit, offset, count int) {
	c.JSON(http.StatusOK, ListResponse{
		StandardResponse: envelope(c, data, "Data retrieved successfully", nil),
		Page:             &PageMeta{Limit: limit, Offset: offset, Count: count},
	})
}

func envelope(c *gin.Context, data interface{}, fallback string, message []string) StandardResponse {
	msg := fallback
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	return StandardResponse{
		Success:   true,
		Data:      data,
		Message:   msg,
		Timestamp: time.Now().UTC(),
		TraceID:   getTraceID(c),
	}
}

func getTraceID(c *gin.Context) string {
	if traceID, exists := c.Get("trace_id"); exists {
		if id, ok := traceID.(string); ok {
			return id
		}
	}
	return c.GetHeader("X-Trace-ID")
}
