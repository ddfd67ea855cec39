// Package validator provides struct-tag request validation for the REST
// surface (internal/transport), shared with internal/ws for the WebSocket
// SUBSCRIBE/UNSUBSCRIBE payload's sync group field.
package validator

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

// syncGroupPattern matches a sync group identifier, e.g. "public.NORMAL":
// a schema name, a dot, and a case name.
var syncGroupPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*\.[A-Za-z0-9_]+$`)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("syncgroup", validateSyncGroup)
}

func validateSyncGroup(fl validator.FieldLevel) bool {
	return syncGroupPattern.MatchString(fl.Field().String())
}

// ValidateStruct runs the struct tags on s and returns the first error, if
// any.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// ValidateRequest validates s and returns a field->message map, or nil when
// s is valid.
func ValidateRequest(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errs := make(map[string]string)
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			errs[strings.ToLower(e.Field())] = formatValidationError(e)
		}
	}
	return errs
}

// BindAndValidate binds the request JSON body into req and validates it,
// writing a 400 response and returning false on either failure.
func BindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return false
	}
	if errs := ValidateRequest(req); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": errs})
		return false
	}
	return true
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "syncgroup":
		return "must be a sync group identifier, e.g. public.NORMAL"
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}
