// Package utctime provides a time type which is always serialized in UTC with millisecond precision.
package utctime

import (
	"strings"
	"time"

	"github.com/relvacode/iso8601"
)

const TimeFormat = "2006-01-02T15:04:05.000Z"

type UTCTime time.Time

func From(t time.Time) UTCTime {
	return UTCTime(t)
}

// FormatTime formats the time in UTC, for example "2006-01-02T08:04:05.000Z".
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func (v UTCTime) Time() time.Time {
	return time.Time(v)
}

func (v UTCTime) IsZero() bool {
	return time.Time(v).IsZero()
}

func (v UTCTime) String() string {
	return FormatTime(time.Time(v))
}

func (v UTCTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

// UnmarshalJSON accepts any ISO 8601 time, the value is converted to UTC.
func (v *UTCTime) UnmarshalJSON(b []byte) error {
	t, err := iso8601.ParseString(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*v = UTCTime(t.UTC())
	return nil
}
