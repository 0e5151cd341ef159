package handlers

import (
	"errors"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/spk-service/internal/spknum"
)

// tagSPK is the binding tag accepting only canonical SPK numbers.
const tagSPK = "spk"

// RegisterValidators installs the "spk" tag on gin's validator engine for
// format f. Call it once at startup, before the first request is bound.
func RegisterValidators(f spknum.Format) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("handlers: gin validator engine is not go-playground/validator")
	}
	return v.RegisterValidation(tagSPK, func(fl validator.FieldLevel) bool {
		return f.Valid(fl.Field().String())
	})
}

// failedTag returns the first validator tag that rejected a bind, or "".
func failedTag(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return verrs[0].Tag()
	}
	return ""
}
