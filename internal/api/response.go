package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

func createdResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

func errorResponse(c *gin.Context, statusCode int, code, message string, details interface{}) {
	c.AbortWithStatusJSON(statusCode, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func badRequestResponse(c *gin.Context, message string, details interface{}) {
	errorResponse(c, http.StatusBadRequest, "BAD_REQUEST", message, details)
}

// operationErrorResponse renders an error returned by the allocation core.
func operationErrorResponse(c *gin.Context, err error) {
	f := classify(err)
	errorResponse(c, f.httpStatus, f.code, f.message, nil)
}

func validationErrorResponse(c *gin.Context, err error) {
	var details []ValidationError
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range verrs {
			details = append(details, ValidationError{Field: strings.ToLower(e.Field()), Tag: e.Tag()})
		}
	}
	errorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid input", details)
}
