package api

import (
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/Aidin1998/pincex_spot/common/errors"
	"github.com/Aidin1998/pincex_spot/pkg/models"
)

var registerOnce sync.Once

// registerValidators adds the domain tags to gin's validator engine.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("symbol", func(fl validator.FieldLevel) bool {
			_, err := models.ParseSymbol(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("side", func(fl validator.FieldLevel) bool {
			_, err := models.ParseSide(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("status", func(fl validator.FieldLevel) bool {
			_, err := models.ParseStatus(fl.Field().String())
			return err == nil
		})
	})
}

// bindError writes a 400 problem for a failed ShouldBind call.
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		errors.BadRequest(c, "malformed request: "+err.Error())
		return
	}
	fields := make([]errors.ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, errors.ValidationError{
			Field:   strings.ToLower(fe.Field()),
			Message: fieldMessage(fe),
			Code:    fe.Tag(),
		})
	}
	errors.BadRequest(c, "request validation failed", fields...)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "symbol":
		return fmt.Sprintf("unsupported symbol %q", fe.Value())
	case "side":
		return "must be BUY or SELL"
	case "status":
		return "must be OPEN, FILLED or CANCELLED"
	case "email":
		return "must be a valid email address"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
