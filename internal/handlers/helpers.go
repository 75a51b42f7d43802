package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/services"
)

// Response is the envelope of every API answer.
type Response struct {
	Status    string              `json:"status"`
	Message   string              `json:"message"`
	Token     string              `json:"token,omitempty"`
	ExpiresAt *time.Time          `json:"expires_at,omitempty"`
	User      *models.AccountView `json:"user,omitempty"`
	Data      interface{}         `json:"data,omitempty"`
}

func respond(c *gin.Context, code int, r *Response) {
	if r.Status == "" {
		r.Status = "success"
	}
	c.JSON(code, r)
}

func respondLogin(c *gin.Context, code int, msg string, res *services.LoginResult) {
	exp := res.ExpiresAt.UTC()
	respond(c, code, &Response{
		Status:    "success",
		Message:   msg,
		Token:     res.Token,
		ExpiresAt: &exp,
		User:      res.Account.View(),
	})
}

func errorBody(msg string) *Response {
	return &Response{Status: "error", Message: msg}
}

// respondError maps domain errors to HTTP. Unknown errors are logged and
// reported as a generic 500.
func respondError(c *gin.Context, log *zap.SugaredLogger, op string, err error) {
	var (
		locked    *services.LockedError
		throttled *services.ThrottledError
	)
	switch {
	case errors.As(err, &locked):
		c.JSON(http.StatusForbidden, errorBody(locked.Error()))
	case errors.As(err, &throttled):
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(throttled.RetryAfter.Seconds()))))
		c.JSON(http.StatusTooManyRequests, errorBody(throttled.Error()))
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, services.ErrConflict):
		c.JSON(http.StatusConflict, errorBody("Email or phone already registered"))
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, errorBody("Invalid credentials"))
	case errors.Is(err, services.ErrUnauthorized),
		errors.Is(err, services.ErrInvalidToken),
		errors.Is(err, services.ErrTokenExpired):
		c.JSON(http.StatusUnauthorized, errorBody("Unauthorized"))
	case errors.Is(err, services.ErrAccountBlocked):
		c.JSON(http.StatusForbidden, errorBody("Account is blocked"))
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, errorBody("Forbidden"))
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody("Not found"))
	case errors.Is(err, services.ErrCodeNotFound):
		c.JSON(http.StatusBadRequest, errorBody("Code not found or expired, request a new one"))
	case errors.Is(err, services.ErrAttemptsExceeded):
		c.JSON(http.StatusBadRequest, errorBody("Too many attempts, request a new code"))
	case errors.Is(err, services.ErrCodeMismatch):
		c.JSON(http.StatusBadRequest, errorBody("Invalid code"))
	default:
		log.Errorf("%s internal error: %v", op, err)
		c.JSON(http.StatusInternalServerError, errorBody("Internal server error"))
	}
}

// bindJSON binds and validates the body, answering 400 on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(validationMessage(err)))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request body"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	f := fe.Field()
	switch fe.Tag() {
	case "required":
		return f + " is required"
	case "email":
		return f + " must be a valid email"
	case "phone":
		return f + " must be a valid phone number"
	case "otp_purpose":
		return f + " must be one of: " + models.PurposeLogin + ", " + models.PurposeResetPassword
	case "min":
		return fmt.Sprintf("%s must be at least %s", f, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", f, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be %s characters", f, fe.Param())
	case "numeric":
		return f + " must contain digits only"
	case "datetime":
		return f + " must be a date in format " + fe.Param()
	case "oneof":
		return f + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return f + " is invalid"
	}
}

func currentAccount(c *gin.Context) *models.Account {
	acc, _ := middleware.CurrentAccount(c)
	return acc
}

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return def
}
