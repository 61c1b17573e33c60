package binder

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/iancoleman/strcase"
	"github.com/segmentio/encoding/json"
)

const (
	email    = "email"
	mx       = "max"
	mn       = "min"
	ne       = "ne"
	nefield  = "nefield"
	oneof    = "oneof"
	required = "required"
	unique   = "unique"
	urlTag   = "url"
)

func formatUnmarshalTypeError(err *json.UnmarshalTypeError) string {
	return fmt.Sprintf("%q should be of type %s", strings.Trim(err.Field, "."), err.Type)
}

func formatSchemaConversionError(err schema.ConversionError) string {
	return fmt.Sprintf("%q should be of type %s", err.Key, err.Type)
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()

	switch err.Tag() {
	case email:
		return fmt.Sprintf("%q is not a valid email", field)
	case mx:
		return formatBound(err, "less")
	case mn:
		return formatBound(err, "greater")
	case ne:
		return fmt.Sprintf("%q can't be %q", field, err.Param())
	case nefield:
		return fmt.Sprintf("%q can't be the same as %s", field, strcase.ToSnake(err.Param()))
	case oneof:
		valids := []string{}
		for _, p := range strings.Fields(err.Param()) {
			valids = append(valids, fmt.Sprintf("%q", p))
		}
		return fmt.Sprintf("%q must be one of the following: %s", field, strings.Join(valids, ", "))
	case required:
		return fmt.Sprintf("%q is required", field)
	case unique:
		return fmt.Sprintf("%q can't contain duplicates", field)
	case urlTag:
		return fmt.Sprintf("%q is not a valid http(s) URL", field)
	default:
		return fmt.Sprintf("%q failed the %q check", field, err.Tag())
	}
}

// formatBound renders min/max failures. Numbers compare by value, slices by
// element count and strings by character count.
func formatBound(err validator.FieldError, direction string) string {
	field := err.Field()

	//exhaustive:ignore
	switch err.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%q must be %s than or equal to %s", field, direction, err.Param())
	case reflect.Slice:
		return fmt.Sprintf("%q length must be %s than or equal to %s %s", field, direction, err.Param(), plural("element", err.Param()))
	default:
		return fmt.Sprintf("%q length must be %s than or equal to %s %s", field, direction, err.Param(), plural("character", err.Param()))
	}
}

func plural(noun, count string) string {
	if count == "1" {
		return noun
	}
	return noun + "s"
}
