package scorm

import (
	"path"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/masomo-scorm/core"
)

var (
	scormVersionTag  = "scorm_version"
	scormVersionText = "must be one of: 1.2, 2004"

	contentRootTag  = "content_root"
	contentRootText = "must be a relative path inside the content directory"
)

// InitValidators registers the validators of this package.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(scormVersionTag, scormVersionValidation)
	core.RegisterCustomTranslation(validate, translator, scormVersionTag, scormVersionText)

	_ = validate.RegisterValidation(contentRootTag, contentRootValidation)
	core.RegisterCustomTranslation(validate, translator, contentRootTag, contentRootText)
}

func (np *NewPackage) Validate(validate *validator.Validate) error {
	np.Clean()
	return validate.Struct(np)
}

// Custom Validators

func scormVersionValidation(fl validator.FieldLevel) bool {
	return Version(fl.Field().String()).IsValid()
}

// contentRootValidation only allows clean relative paths that stay inside the content directory.
func contentRootValidation(fl validator.FieldLevel) bool {
	root := fl.Field().String()
	if root == "" || strings.HasPrefix(root, "/") || strings.Contains(root, `\`) {
		return false
	}
	clean := path.Clean(root)
	return clean == root && clean != "." && clean != ".." && !strings.HasPrefix(clean, "../")
}
