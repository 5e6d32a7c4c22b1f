// Package json wraps github.com/json-iterator/go configured to be compatible with the standard library.
package json

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/keboola/processing-plant/internal/pkg/utils/errors"
)

// nolint: gochecknoglobals
var api = jsoniter.ConfigCompatibleWithStandardLibrary

func Encode(v any, pretty bool) ([]byte, error) {
	if pretty {
		return api.MarshalIndent(v, "", "  ")
	}
	return api.Marshal(v)
}

func EncodeString(v any, pretty bool) (string, error) {
	data, err := Encode(v, pretty)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func MustEncodeString(v any, pretty bool) string {
	out, err := EncodeString(v, pretty)
	if err != nil {
		panic(errors.Errorf("cannot encode JSON: %w", err))
	}
	return out
}

func Decode(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

func DecodeString(data string, v any) error {
	return Decode([]byte(data), v)
}
