package gateway

import (
	"testing"
	"time"

	apperrors "github.com/smileagent/autoreply-engine/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStartTime_DateAndTime(t *testing.T) {
	start, err := parseStartTime("15/03/2025", "14:30", "Europe/Rome")
	require.NoError(t, err)

	loc, _ := time.LoadLocation("Europe/Rome")
	assert.Equal(t, time.Date(2025, time.March, 15, 14, 30, 0, 0, loc), start)
}

func TestParseStartTime_DefaultHour(t *testing.T) {
	start, err := parseStartTime("15/03/2025", "", "Europe/Rome")
	require.NoError(t, err)

	assert.Equal(t, 10, start.Hour())
	assert.Equal(t, 0, start.Minute())
}

func TestParseStartTime_TwoDigitYear(t *testing.T) {
	start, err := parseStartTime("3-4-25", "9:15", "Europe/Rome")
	require.NoError(t, err)

	assert.Equal(t, 2025, start.Year())
	assert.Equal(t, time.April, start.Month())
	assert.Equal(t, 3, start.Day())
	assert.Equal(t, 9, start.Hour())
	assert.Equal(t, 15, start.Minute())
}

func TestParseStartTime_MissingDate(t *testing.T) {
	_, err := parseStartTime("", "14:30", "Europe/Rome")
	require.Error(t, err)
	assert.True(t, apperrors.IsParseFailure(err))
}

func TestParseStartTime_NonNumericDate(t *testing.T) {
	// Weekday tokens are matched by detection but not resolvable here
	_, err := parseStartTime("lunedì", "", "Europe/Rome")
	require.Error(t, err)
	assert.True(t, apperrors.IsParseFailure(err))
}

func TestParseStartTime_ImplausibleDate(t *testing.T) {
	_, err := parseStartTime("45/13/2025", "", "Europe/Rome")
	require.Error(t, err)
	assert.True(t, apperrors.IsParseFailure(err))
}

func TestParseStartTime_ImplausibleTime(t *testing.T) {
	_, err := parseStartTime("15/03/2025", "99:99", "Europe/Rome")
	require.Error(t, err)
	assert.True(t, apperrors.IsParseFailure(err))
}

func TestParseStartTime_UnknownTimezoneFallsBackToUTC(t *testing.T) {
	start, err := parseStartTime("15/03/2025", "14:30", "Not/AZone")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, start.Location())
}

func TestParseStartTime_UnparseableTimeTokenUsesDefault(t *testing.T) {
	// "pomeriggio" carries no clock time; the default applies
	start, err := parseStartTime("15/03/2025", "pomeriggio", "Europe/Rome")
	require.NoError(t, err)
	assert.Equal(t, 10, start.Hour())
}
