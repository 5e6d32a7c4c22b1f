package utctime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTime(t *testing.T) {
	t.Parallel()
	now, err := time.Parse(time.RFC3339, "2006-01-02T15:04:05+07:00")
	assert.NoError(t, err)
	assert.Equal(t, "2006-01-02T08:04:05.000Z", FormatTime(now))
}

func TestUTCTime_JSON(t *testing.T) {
	t.Parallel()
	now, err := time.Parse(time.RFC3339, "2006-01-02T15:04:05+07:00")
	require.NoError(t, err)

	data, err := From(now).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2006-01-02T08:04:05.000Z"`, string(data))

	var decoded UTCTime
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.True(t, now.Equal(decoded.Time()))
}

func TestUTCTime_UnmarshalJSON_ISO8601(t *testing.T) {
	t.Parallel()

	var decoded UTCTime
	require.NoError(t, decoded.UnmarshalJSON([]byte(`"2006-01-02T15:04:05+07:00"`)))
	assert.Equal(t, "2006-01-02T08:04:05.000Z", decoded.String())

	assert.Error(t, decoded.UnmarshalJSON([]byte(`"foo"`)))
}
