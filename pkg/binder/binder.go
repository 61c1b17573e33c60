package binder

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/mold/v4"
	"github.com/go-playground/mold/v4/modifiers"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"github.com/labstack/echo/v4"
	"github.com/learnmap/learnmap/pkg/errcodes"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
)

var unknownFieldsRE = regexp.MustCompile(`^json: unknown field "(.*)"$`)

// Context keys a handler can set to false before calling Bind to relax the
// defaults.
const (
	DisallowEmptyBodyKey     = "disallow_empty_body"
	DisallowUnknownFieldsKey = "disallow_unknown_fields"
)

// Binder implements echo.Binder. It decodes the request into a struct, runs
// mold modifiers (`mod` tags), applies `default` tags and validates the
// result against `validate` tags.
type Binder struct {
	queryDecoder *schema.Decoder
	formDecoder  *schema.Decoder
	conform      *mold.Transformer
	validate     *validator.Validate
}

// New initializes a new Binder with the custom validations registered.
func New() (*Binder, error) {
	queryDecoder := schema.NewDecoder()
	queryDecoder.SetAliasTag("query")
	formDecoder := schema.NewDecoder()
	formDecoder.SetAliasTag("form")

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := validate.RegisterValidation("url", urlValidator); err != nil {
		return nil, errors.WithStack(err)
	}

	return &Binder{
		queryDecoder: queryDecoder,
		formDecoder:  formDecoder,
		conform:      modifiers.New(),
		validate:     validate,
	}, nil
}

// Bind binds, modifies, and validates payloads against the given struct.
func (b *Binder) Bind(i interface{}, c echo.Context) error {
	req := c.Request()

	var err error
	switch {
	case req.ContentLength > 0:
		err = b.bindBody(i, c)
	case req.Method == http.MethodGet || req.Method == http.MethodDelete:
		err = b.decodeValues(i, c.QueryParams(), b.queryDecoder)
	case flag(c, DisallowEmptyBodyKey, true):
		err = errcodes.EmptyRequestBody()
	}
	if err != nil {
		return err
	}

	if err := b.conform.Struct(req.Context(), i); err != nil {
		return errors.WithStack(err)
	}

	if err := defaults.Set(i); err != nil {
		return errors.WithStack(err)
	}

	if err := b.validate.Struct(i); err != nil {
		var errs validator.ValidationErrors
		if !errors.As(err, &errs) || len(errs) == 0 {
			return errors.WithStack(err)
		}
		return errcodes.ValidationError(formatValidationError(errs[0]))
	}
	return nil
}

func (b *Binder) bindBody(i interface{}, c echo.Context) error {
	ctype := c.Request().Header.Get(echo.HeaderContentType)
	switch {
	case strings.HasPrefix(ctype, echo.MIMEApplicationJSON):
		return b.bindJSON(i, c)
	case strings.HasPrefix(ctype, echo.MIMEApplicationForm):
		params, err := c.FormParams()
		if err != nil {
			return errcodes.MalformedPayload()
		}
		return b.decodeValues(i, params, b.formDecoder)
	default:
		return errcodes.UnsupportedMediaType()
	}
}

func (b *Binder) bindJSON(i interface{}, c echo.Context) error {
	body := c.Request().Body
	defer body.Close()

	dec := json.NewDecoder(body)
	if flag(c, DisallowUnknownFieldsKey, true) {
		dec.DisallowUnknownFields()
	}

	err := dec.Decode(i)
	if err == nil {
		return nil
	}

	// better error message when there are unknown fields
	if matches := unknownFieldsRE.FindStringSubmatch(err.Error()); len(matches) > 1 {
		return errcodes.UnknownParameter(matches[1])
	}

	// better error message on type errors
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return errcodes.ValidationTypeError(formatUnmarshalTypeError(typeErr))
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return errcodes.MalformedPayload()
	}

	logger.FromEchoContext(c).Err(err).Error("unknown json decode error")
	return errcodes.MalformedPayload()
}

func (b *Binder) decodeValues(i interface{}, values url.Values, decoder *schema.Decoder) error {
	err := decoder.Decode(i, values)
	if err == nil {
		return nil
	}

	var multi schema.MultiError
	if !errors.As(err, &multi) {
		return errors.WithStack(err)
	}

	// report the first failure only
	for _, first := range multi {
		var conversionErr schema.ConversionError
		if errors.As(first, &conversionErr) {
			return errcodes.ValidationTypeError(formatSchemaConversionError(conversionErr))
		}
		var unknownErr schema.UnknownKeyError
		if errors.As(first, &unknownErr) {
			return errcodes.UnknownParameter(unknownErr.Key)
		}
		return errors.WithStack(first)
	}
	return nil
}

// flag reads a boolean the handler stored on the context, falling back to
// def when unset.
func flag(c echo.Context, key string, def bool) bool {
	if v, ok := c.Get(key).(bool); ok {
		return v
	}
	return def
}
