package errors

import (
	"fmt"
	"strings"
)

const (
	Indent = "  "
	Bullet = "- "
)

type FormatConfig struct {
	WithStack bool
}

type FormatOption func(c *FormatConfig)

// FormatWithStack adds the location of the error creation to each message.
func FormatWithStack() FormatOption {
	return func(c *FormatConfig) {
		c.WithStack = true
	}
}

// Format converts the error to a string.
// Multi-errors are formatted as a bullet list, nested lists are indented.
func Format(err error, opts ...FormatOption) string {
	cfg := FormatConfig{}
	for _, o := range opts {
		o(&cfg)
	}

	out := &strings.Builder{}
	writeError(out, cfg, 0, err)
	return out.String()
}

func writeError(out *strings.Builder, cfg FormatConfig, level int, err error) {
	if v, ok := err.(multiErrorGetter); ok { // nolint: errorlint
		errs := v.WrappedErrors()
		for i, item := range errs {
			if i > 0 {
				out.WriteString("\n")
			}
			out.WriteString(strings.Repeat(Indent, level))
			out.WriteString(Bullet)
			writeError(out, cfg, level+1, item)
		}
		return
	}

	msg := err.Error()
	if cfg.WithStack {
		if v, ok := err.(stackTracer); ok && len(v.StackTrace()) > 0 { // nolint: errorlint
			msg = fmt.Sprintf("%s [%+v]", msg, v.StackTrace()[0])
		}
	}

	// Align multi-line messages
	out.WriteString(strings.ReplaceAll(msg, "\n", "\n"+strings.Repeat(Indent, level)))
}
