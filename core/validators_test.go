package core

import (
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateValidationError(t *testing.T) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	InitValidators(validate, translator)

	type launchRequest struct {
		Title string `json:"title" validate:"required"`
		Note  string `json:"note" validate:"notblank"`
		Skip  string `json:"-" validate:"required"`
	}

	err := TranslateValidationError(validate.Struct(launchRequest{Note: "  ", Skip: "x"}), translator, "request")
	require.Error(t, err)
	vErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, "invalid request: title this field is required; note this field cannot be blank", vErr.Error())
	assert.Equal(t, map[string]string{"title": "this field is required", "note": "this field cannot be blank"}, vErr.FieldMap())

	assert.NoError(t, TranslateValidationError(validate.Struct(launchRequest{Title: "t", Note: "n", Skip: "x"}), translator, "request"))
	assert.Equal(t, assert.AnError, TranslateValidationError(assert.AnError, translator, "request"))
}
