// Package validator wraps github.com/go-playground/validator/v10 with English error messages.
// Field names in messages are taken from the mapstructure, json or yaml tag, in that order.
package validator

import (
	"context"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslation "github.com/go-playground/validator/v10/translations/en"

	"github.com/keboola/processing-plant/internal/pkg/utils/errors"
)

// Rule is a custom validation rule.
type Rule struct {
	Tag  string
	Func validator.FuncCtx
	// ErrorMsg is the translation of the rule, "{0}" is the field name and "{1}" is the rule parameter.
	ErrorMsg string
}

type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func New(rules ...Rule) *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Register default EN translator
	enLocale := en.New()
	translator, found := ut.New(enLocale, enLocale).GetTranslator("en")
	if !found {
		panic(errors.New("en translator was not found"))
	}
	if err := enTranslation.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(errors.Errorf("translator was not registered: %w", err))
	}

	// Register custom validation rules
	for _, rule := range rules {
		if err := validate.RegisterValidationCtx(rule.Tag, rule.Func); err != nil {
			panic(err)
		}
		if rule.ErrorMsg != "" {
			registerTranslation(validate, translator, rule)
		}
	}

	// Use tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"mapstructure", "json", "yaml"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return fld.Name
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	return &Validator{validate: validate, translator: translator}
}

// Validate a struct, all errors are returned as one multi-error.
func (v *Validator) Validate(ctx context.Context, value any) error {
	err := v.validate.StructCtx(ctx, value)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	result := errors.NewMultiError()
	for _, e := range validationErrs {
		msg := strings.Replace(e.Translate(v.translator), e.Field(), strconv.Quote(fieldPath(e.Namespace())), 1)
		result.Append(errors.New(msg))
	}
	return result.ErrorOrNil()
}

// fieldPath removes the struct name from the namespace.
func fieldPath(namespace string) string {
	if _, path, found := strings.Cut(namespace, "."); found {
		return path
	}
	return namespace
}

func registerTranslation(validate *validator.Validate, translator ut.Translator, rule Rule) {
	err := validate.RegisterTranslation(
		rule.Tag,
		translator,
		func(t ut.Translator) error {
			return t.Add(rule.Tag, rule.ErrorMsg, true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, err := t.T(fe.Tag(), fe.Field(), fe.Param())
			if err != nil {
				return fe.Error()
			}
			return msg
		},
	)
	if err != nil {
		panic(err)
	}
}
