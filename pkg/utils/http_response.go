package utils

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/bavena95/mode-app/pkg/apperrors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

type JSONResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
}

// FieldError describes one rejected request field.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func ResponseWithSuccess(
	c *gin.Context,
	statusCode int,
	message string,
	data interface{},
) {
	c.JSON(statusCode, JSONResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func ResponseWithError(
	c *gin.Context,
	statusCode int,
	message string,
	errorDetails interface{},
) {
	c.JSON(statusCode, JSONResponse{
		Success: false,
		Message: message,
		Error:   errorDetails,
	})
}

// ResponseWithAppError answers with the status carried by err. Unclassified
// errors become a 500 with a generic message.
func ResponseWithAppError(c *gin.Context, err error) {
	if appErr, ok := apperrors.As(err); ok {
		status := appErr.StatusCode()
		if status >= http.StatusInternalServerError {
			log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		} else {
			log.Debugf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		}
		ResponseWithError(c, status, appErr.Message, appErr.Details)
		return
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		ResponseWithValidationError(c, err)
		return
	}

	log.Errorf("%s %s: unexpected error: %v", c.Request.Method, c.FullPath(), err)
	ResponseWithError(c, http.StatusInternalServerError, "Internal server error", nil)
}

// ResponseWithValidationError answers 422 for a request body that failed to
// bind or validate.
func ResponseWithValidationError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
		}
		ResponseWithError(c, http.StatusUnprocessableEntity, "Request validation failed", details)
		return
	}
	ResponseWithError(c, http.StatusUnprocessableEntity, "Invalid request body", err.Error())
}

// RegisterJSONFieldNames makes validation errors report json tag names.
func RegisterJSONFieldNames() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

var registerOnce sync.Once
