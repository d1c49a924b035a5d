package domain

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			_, err := ParseClock(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("week", func(fl validator.FieldLevel) bool {
			return ValidWeek(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// Validate checks a user record's struct tags. Failures are validation
// errors naming the first offending field.
func Validate(record any) error {
	err := validatorInstance().Struct(record)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		first := fieldErrs[0]
		field := strings.ToLower(first.Field())
		return apperrors.WrapWithMetadata(
			apperrors.CodeValidation,
			first.StructNamespace()+" fails "+first.Tag(),
			map[string]string{"Field": field},
			err,
		)
	}
	return apperrors.Wrap(apperrors.CodeValidation, "invalid record", err)
}
