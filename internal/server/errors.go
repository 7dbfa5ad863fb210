package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditmeter/internal/authorization"
	configdomain "github.com/smallbiznis/creditmeter/internal/configstore/domain"
	eventdomain "github.com/smallbiznis/creditmeter/internal/eventdef/domain"
	orgdomain "github.com/smallbiznis/creditmeter/internal/organization/domain"
	plandomain "github.com/smallbiznis/creditmeter/internal/plandef/domain"
	"github.com/smallbiznis/creditmeter/internal/ratelimit"
	usagedomain "github.com/smallbiznis/creditmeter/internal/usage/domain"
	"github.com/smallbiznis/creditmeter/internal/usage/liveevents"
	"github.com/smallbiznis/creditmeter/pkg/db"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// validationSentinels are reported as 400 with the sentinel text as the code.
var validationSentinels = []error{
	ErrInvalidRequest,
	usagedomain.ErrInvalidOrganization,
	usagedomain.ErrInvalidUser,
	usagedomain.ErrInvalidEventType,
	usagedomain.ErrInvalidCredits,
	usagedomain.ErrInvalidEventData,
	usagedomain.ErrInvalidMonth,
	usagedomain.ErrInvalidMonthCount,
	usagedomain.ErrInvalidPageToken,
	eventdomain.ErrUnknownEventType,
	eventdomain.ErrInvalidEventDefinition,
	plandomain.ErrUnknownPlan,
	plandomain.ErrInvalidPlanDefinition,
	plandomain.ErrInvalidPriceRange,
	configdomain.ErrInvalidConfigurationKey,
	configdomain.ErrInvalidPatch,
	orgdomain.ErrInvalidOrganization,
	orgdomain.ErrInvalidName,
	orgdomain.ErrInvalidUser,
	orgdomain.ErrInvalidRole,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if code, ok := validationErrorCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code, err),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isUnavailableError(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and a low-cardinality code for request logs.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	switch payload.Type {
	case "validation_error":
		if len(payload.Errors) > 0 {
			return payload.Type, payload.Errors[0].Code
		}
		return payload.Type, "invalid_request"
	case "internal_error", "service_unavailable":
		return payload.Type, db.ClassifyError(err)
	default:
		return payload.Type, payload.Type
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorCode(err error) (string, bool) {
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, configdomain.ErrUnknownConfigurationKey),
		errors.Is(err, configdomain.ErrNotFound),
		errors.Is(err, orgdomain.ErrOrganizationNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isUnavailableError(err error) bool {
	switch {
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, eventdomain.ErrRegistryUnavailable),
		errors.Is(err, plandomain.ErrRegistryUnavailable),
		errors.Is(err, usagedomain.ErrStandingUnavailable),
		errors.Is(err, liveevents.ErrHubUnavailable),
		errors.Is(err, ratelimit.ErrNotConfigured):
		return true
	default:
		return db.IsTransient(err)
	}
}

func validationErrorField(code string) string {
	switch {
	case code == "invalid_request":
		return "request"
	case strings.HasPrefix(code, "unknown_"):
		return strings.TrimPrefix(code, "unknown_")
	case strings.HasPrefix(code, "invalid_"):
		return strings.TrimPrefix(code, "invalid_")
	default:
		return ""
	}
}

// validationErrorMessage keeps the detail a wrapped sentinel carries, e.g. the unknown key.
func validationErrorMessage(code string, err error) string {
	if code == "invalid_request" {
		return "invalid request"
	}
	msg := err.Error()
	if detail, ok := strings.CutPrefix(msg, code+": "); ok && detail != "" {
		return detail
	}
	if strings.HasPrefix(code, "unknown_") {
		return "unknown value"
	}
	return "invalid value"
}
