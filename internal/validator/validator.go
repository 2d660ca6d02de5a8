package validator

import (
	"github.com/go-playground/validator/v10"

	"vienlink/internal/model"
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New()

	// Custom validators
	v.RegisterValidation("blood_group", validateBloodGroup)
	v.RegisterValidation("assay", validateAssay)

	return &Validator{validate: v}
}

func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func validateBloodGroup(fl validator.FieldLevel) bool {
	return model.BloodGroup(fl.Field().String()).Valid()
}

func validateAssay(fl validator.FieldLevel) bool {
	return model.Assay(fl.Field().String()).Valid()
}
