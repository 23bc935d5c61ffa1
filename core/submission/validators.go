package submission

import (
	"regexp"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/plagiat/core"
)

var (
	assignmentCodeTag   = "assignment_code"
	assignmentCodeText  = "only letters, digits, '-', '_' and '.' are allowed (max 64 characters)"
	assignmentCodeRegex = regexp.MustCompile(`^[\p{L}\p{N}_.-]{1,64}$`)
)

// InitValidators registers the submission validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(assignmentCodeTag, assignmentCodeValidation)
	core.RegisterCustomTranslation(validate, translator, assignmentCodeTag, assignmentCodeText)
}

// Custom Validators

// assignmentCodeValidation checks that an assignment code is safe to use in URLs & CLI flags.
func assignmentCodeValidation(fl validator.FieldLevel) bool {
	return assignmentCodeRegex.MatchString(fl.Field().String())
}
