package handlers

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidations adds the custom binding tags used by request DTOs.
func RegisterValidations() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("rfc3339", func(fl validator.FieldLevel) bool {
				_, err := time.Parse(time.RFC3339, fl.Field().String())
				return err == nil
			})
		}
	})
}
