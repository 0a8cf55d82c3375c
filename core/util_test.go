package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanString(t *testing.T) {
	tests := []struct {
		s     string
		lower bool
		want  string
	}{
		{"  Intro Course \n", false, "Intro Course"},
		{"  Intro Course ", true, "intro course"},
		{"", false, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanString(tt.s, tt.lower))
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		def   int
		max   int
		want  int
	}{
		{"default", 0, 50, 500, 50},
		{"negative", -3, 50, 500, 50},
		{"within", 20, 50, 500, 20},
		{"capped", 1000, 50, 500, 500},
		{"no cap", 1000, 50, 0, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampLimit(tt.limit, tt.def, tt.max))
		})
	}
}

func TestAllowedOrderings(t *testing.T) {
	ordering := []DBOrdering{
		{Field: "score"},
		{Field: "password; --", Ascending: true},
		{Field: "created_at", Ascending: true},
	}
	got := AllowedOrderings(ordering, "score", "created_at")
	assert.Equal(t, []DBOrdering{{Field: "score"}, {Field: "created_at", Ascending: true}}, got)
	assert.Nil(t, AllowedOrderings(nil, "score"))

	assert.Equal(t, "score DESC", DBOrdering{Field: "score"}.String())
	assert.Equal(t, "created_at ASC", DBOrdering{Field: "created_at", Ascending: true}.String())
}

func TestValidationError(t *testing.T) {
	err := NewValidationError(assert.AnError, FieldError{Field: "title", Error: "this field is required"})
	assert.Equal(t, assert.AnError.Error(), err.Error())
	assert.Equal(t, map[string]string{"title": "this field is required"}, err.(*ValidationError).FieldMap())
	assert.Nil(t, ValidationError{}.FieldMap())
	assert.False(t, IsShutdown(err))
	assert.True(t, IsShutdown(NewShutdownError("stop")))
}
