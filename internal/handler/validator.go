package handler

import (
    "errors"
    "reflect"
    "strings"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/table-reservation/internal/service"
)

// RequestValidator plugs go-playground/validator into Echo so handlers can
// call c.Validate on bound request bodies.
type RequestValidator struct {
    v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
    v := validator.New(validator.WithRequiredStructEnabled())
    // report fields by their JSON name
    v.RegisterTagNameFunc(func(f reflect.StructField) string {
        name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
        if name == "-" || name == "" {
            return f.Name
        }
        return name
    })
    return &RequestValidator{v: v}
}

// Validate returns a *service.ValidationError for the first failing field.
func (rv *RequestValidator) Validate(i any) error {
    err := rv.v.Struct(i)
    if err == nil {
        return nil
    }
    var fes validator.ValidationErrors
    if errors.As(err, &fes) && len(fes) > 0 {
        fe := fes[0]
        return &service.ValidationError{Field: fe.Field(), Reason: reason(fe)}
    }
    return &service.ValidationError{Field: "body", Reason: err.Error()}
}

func reason(fe validator.FieldError) string {
    switch fe.Tag() {
    case "required":
        return "is required"
    case "email":
        return "must be a valid email address"
    case "min":
        return "must be at least " + fe.Param()
    case "max":
        return "must be at most " + fe.Param()
    case "gt":
        return "must be greater than " + fe.Param()
    }
    return "failed " + fe.Tag() + " check"
}

// bind decodes the body into dst and validates it.  Decoding failures
// surface as validation errors so the caller gets a 400.
func bind(c echo.Context, dst any) error {
    if err := c.Bind(dst); err != nil {
        return &service.ValidationError{Field: "body", Reason: "malformed JSON"}
    }
    return c.Validate(dst)
}
