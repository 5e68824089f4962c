package api

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"inventory-engine/internal/models"
)

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// ResponseHelpers provides methods for REST-native responses
type ResponseHelpers struct{}

// Success sends the resource directly (no wrapper)
func (h *ResponseHelpers) Success(c *gin.Context, resource interface{}) {
	c.JSON(200, resource)
}

// Created sends a 201 created response with the created resource
func (h *ResponseHelpers) Created(c *gin.Context, resource interface{}) {
	c.JSON(201, resource)
}

// NoContent sends a 204 no content response
func (h *ResponseHelpers) NoContent(c *gin.Context) {
	c.Status(204)
}

func (h *ResponseHelpers) ValidationError(c *gin.Context, field, message string) {
	problem := models.NewValidationProblem(field, message)
	h.setRequestIDHeader(c)
	c.JSON(400, problem)
}

// BindingError maps a gin binding failure to a 400 problem, naming the first
// violated field when the validator reports one
func (h *ResponseHelpers) BindingError(c *gin.Context, err error) {
	if validationErrors, ok := err.(validator.ValidationErrors); ok && len(validationErrors) > 0 {
		first := validationErrors[0]
		h.ValidationError(c, strings.ToLower(first.Field()), validationMessage(first))
		return
	}
	h.ValidationError(c, "request", "Invalid request format")
}

// DomainError maps an engine error to its HTTP problem response.
// Typed errors carry the status; anything unrecognized becomes a 500.
func (h *ResponseHelpers) DomainError(c *gin.Context, err error) {
	h.setRequestIDHeader(c)
	code := models.CodeForError(err)

	switch code {
	case models.ErrorCodeInsufficientStock:
		c.JSON(409, models.NewBusinessProblem(409, "Insufficient Stock", err.Error(), code))
	case models.ErrorCodeNotFound:
		c.JSON(404, models.NewBusinessProblem(404, "Not Found", err.Error(), code))
	case models.ErrorCodeFulfillmentAborted:
		status := 409
		if models.IsConcurrencyConflict(err) {
			status = 503
		}
		c.JSON(status, models.NewBusinessProblem(status, "Fulfillment Aborted", err.Error(), code))
	case models.ErrorCodeConcurrencyConflict:
		c.JSON(503, models.NewBusinessProblem(503, "Temporarily Unavailable", "The product is under heavy contention, retry shortly", code))
	default:
		h.InternalError(c, err.Error())
	}
}

// InternalError sends a 500 internal server error response
func (h *ResponseHelpers) InternalError(c *gin.Context, detail string) {
	problem := models.NewProblemDetails(500, "Internal Server Error", "An unexpected error occurred")
	h.setRequestIDHeader(c)

	// Log the error for debugging but don't expose internals
	log.Error().
		Str("request_id", getRequestID(c)).
		Str("detail", detail).
		Msg("Internal server error")

	c.JSON(500, problem)
}

// Helper functions

func (h *ResponseHelpers) setRequestIDHeader(c *gin.Context) {
	if requestID := getRequestID(c); requestID != "" {
		c.Header("X-Request-ID", requestID)
	}
}

func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		return requestID.(string)
	}
	return ""
}

func validationMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return "Value is too small"
	case "max":
		return "Value is too large"
	default:
		return "Invalid value"
	}
}

// Create a global instance for easy access
var Response = &ResponseHelpers{}
