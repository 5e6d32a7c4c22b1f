package validator_test

import (
	"context"
	"strings"
	"testing"

	goValidator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/processing-plant/internal/pkg/validator"
)

type testConfig struct {
	Name    string       `mapstructure:"name" validate:"required"`
	Mode    string       `json:"mode" validate:"oneof=a b"`
	Plain   int          `validate:"min=1"`
	Nested  testNested   `mapstructure:"nested"`
	Ignored string       `mapstructure:"-" validate:"required"`
	Items   []testNested `mapstructure:"items" validate:"dive"`
}

type testNested struct {
	Value string `mapstructure:"value" validate:"required,even"`
}

type testSimple struct {
	Value string `mapstructure:"value" validate:"required"`
}

func TestValidator(t *testing.T) {
	t.Parallel()

	v := validator.New(validator.Rule{
		Tag: "even",
		Func: func(_ context.Context, fl goValidator.FieldLevel) bool {
			return len(fl.Field().String())%2 == 0
		},
		ErrorMsg: "{0} must have even length",
	})

	err := v.Validate(context.Background(), testConfig{
		Mode:   "c",
		Nested: testNested{Value: "x"},
		Items:  []testNested{{Value: "ab"}, {Value: "abc"}},
	})
	expected := `
- "name" is a required field
- "mode" must be one of [a b]
- "Plain" must be 1 or greater
- "nested.value" must have even length
- "Ignored" is a required field
- "items[1].value" must have even length
`
	require.Error(t, err)
	assert.Equal(t, strings.TrimSpace(expected), err.Error())
}

func TestValidator_Valid(t *testing.T) {
	t.Parallel()

	v := validator.New()
	err := v.Validate(context.Background(), &testSimple{Value: "ab"})
	assert.NoError(t, err)
}

func TestValidator_SingleError(t *testing.T) {
	t.Parallel()

	v := validator.New()
	err := v.Validate(context.Background(), testSimple{})
	require.Error(t, err)
	assert.Equal(t, `"value" is a required field`, err.Error())
}
