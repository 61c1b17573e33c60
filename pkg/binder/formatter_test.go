package binder

import (
	"reflect"
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/gorilla/schema"
	"github.com/stretchr/testify/assert"
)

type mockFieldError struct {
	tag   string
	field string
	param string
	kind  reflect.Kind
}

func (e *mockFieldError) Error() string           { return "Mock Field Error" }
func (e *mockFieldError) Tag() string             { return e.tag }
func (e *mockFieldError) ActualTag() string       { return e.tag }
func (e *mockFieldError) Namespace() string       { return "" }
func (e *mockFieldError) StructNamespace() string { return "" }
func (e *mockFieldError) Field() string           { return e.field }
func (e *mockFieldError) StructField() string     { return "" }
func (e *mockFieldError) Value() interface{}      { return "" }
func (e *mockFieldError) Param() string           { return e.param }
func (e *mockFieldError) Kind() reflect.Kind {
	if e.kind == 0 {
		return reflect.String
	}
	return e.kind
}
func (e *mockFieldError) Type() reflect.Type               { return reflect.TypeOf("") }
func (e *mockFieldError) Translate(_ ut.Translator) string { return "" }

func TestFormatValidationError(t *testing.T) {
	cases := []struct {
		tag   string
		param string
		kind  reflect.Kind
		msg   string
	}{
		{email, "", 0, `"multi_word" is not a valid email`},
		// String min/max
		{mx, "20", reflect.String, `"multi_word" length must be less than or equal to 20 characters`},
		{mx, "1", reflect.String, `"multi_word" length must be less than or equal to 1 character`},
		{mn, "20", reflect.String, `"multi_word" length must be greater than or equal to 20 characters`},
		{mn, "1", reflect.String, `"multi_word" length must be greater than or equal to 1 character`},
		// Numeric min/max
		{mx, "50", reflect.Int, `"multi_word" must be less than or equal to 50`},
		{mx, "100", reflect.Int64, `"multi_word" must be less than or equal to 100`},
		{mx, "1", reflect.Uint, `"multi_word" must be less than or equal to 1`},
		{mn, "1", reflect.Int, `"multi_word" must be greater than or equal to 1`},
		{mn, "0", reflect.Float64, `"multi_word" must be greater than or equal to 0`},
		// Slice min/max
		{mx, "5", reflect.Slice, `"multi_word" length must be less than or equal to 5 elements`},
		{mx, "1", reflect.Slice, `"multi_word" length must be less than or equal to 1 element`},
		{mn, "2", reflect.Slice, `"multi_word" length must be greater than or equal to 2 elements`},
		{mn, "1", reflect.Slice, `"multi_word" length must be greater than or equal to 1 element`},
		// Other
		{ne, "20", 0, `"multi_word" can't be "20"`},
		{nefield, "FromChapterID", 0, `"multi_word" can't be the same as from_chapter_id`},
		{unique, "", reflect.Slice, `"multi_word" can't contain duplicates`},
		{urlTag, "", 0, `"multi_word" is not a valid http(s) URL`},
		{oneof, "one two three", 0, `"multi_word" must be one of the following: "one", "two", "three"`},
		{required, "", 0, `"multi_word" is required`},
		{"lowercase", "", 0, `"multi_word" failed the "lowercase" check`},
	}

	for _, tt := range cases {
		t.Run(tt.tag+"/"+tt.param, func(t *testing.T) {
			err := mockFieldError{tag: tt.tag, field: "multi_word", param: tt.param, kind: tt.kind}
			assert.Equal(t, tt.msg, formatValidationError(&err))
		})
	}
}

func TestFormatSchemaConversionError(t *testing.T) {
	err := schema.ConversionError{Key: "org_id", Type: reflect.TypeOf(0)}
	assert.Equal(t, `"org_id" should be of type int`, formatSchemaConversionError(err))
}
