package handlers

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"storefront/internal/models"
)

func init() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	// в сообщениях об ошибках используем имена из json
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return models.PhonePattern.MatchString(models.NormalizePhone(fl.Field().String()))
	})
	_ = v.RegisterValidation("otp_purpose", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case models.PurposeLogin, models.PurposeResetPassword:
			return true
		}
		return false
	})
}
