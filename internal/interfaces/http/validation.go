package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/garyjia/school-billing/internal/domain/entity"
	"github.com/garyjia/school-billing/pkg/utils"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		return entity.PaymentMethod(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		_, err := utils.ParseAmount(fl.Field().String())
		return err == nil
	})
	return v
}

// bindAndValidate binds the JSON body and runs validator tags. It writes the
// error response itself; on false the caller returns immediately.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid JSON: " + err.Error(),
		})
		return false
	}
	if err := validate.Struct(req); err != nil {
		fields := make(map[string]string)
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		c.JSON(http.StatusUnprocessableEntity, Response{
			Success: false,
			Error:   "validation failed",
			Fields:  fields,
		})
		return false
	}
	return true
}
