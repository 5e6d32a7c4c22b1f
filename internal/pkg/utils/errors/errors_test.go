package errors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keboola/processing-plant/internal/pkg/utils/errors"
)

var errSentinel = errors.New("sentinel")

func TestErrorf_Unwrap(t *testing.T) {
	t.Parallel()
	err := errors.Errorf("cannot register task: %w", errSentinel)
	assert.Equal(t, "cannot register task: sentinel", err.Error())
	assert.True(t, errors.Is(err, errSentinel))
}

func TestWrap(t *testing.T) {
	t.Parallel()
	err := errors.Wrapf(errSentinel, "episode %q", "ep1")
	assert.Equal(t, `episode "ep1"`, err.Error())
	assert.True(t, errors.Is(err, errSentinel))
}

func TestMultiError(t *testing.T) {
	t.Parallel()

	errs := errors.NewMultiError()
	assert.NoError(t, errs.ErrorOrNil())

	errs.Append(nil, errors.New("first"))
	assert.Equal(t, "first", errs.ErrorOrNil().Error())

	nested := errors.NewMultiError()
	nested.Append(errors.New("second"), errors.New("third"))
	errs.Append(nested)
	assert.Equal(t, 3, errs.Len())
	assert.Equal(t, "- first\n- second\n- third", errs.ErrorOrNil().Error())
}

func TestFormatWithStack(t *testing.T) {
	t.Parallel()
	out := errors.Format(errors.New("some error"), errors.FormatWithStack())
	assert.Contains(t, out, "some error [")
	assert.Contains(t, out, "errors_test.go")
}
