package civil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRejectsImpossibleDates(t *testing.T) {
	_, err := Parse("2023-02-29")
	assert.Error(t, err)

	_, err = Parse("2024-3-1")
	assert.Error(t, err)

	d, err := Parse("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.String())
}

func TestAddDaysCrossesMonthAndLeapBoundaries(t *testing.T) {
	assert.Equal(t, "2024-02-29", MustParse("2024-03-01").AddDays(-1).String())
	assert.Equal(t, "2023-02-28", MustParse("2023-03-01").AddDays(-1).String())
	assert.Equal(t, "2025-01-01", MustParse("2024-12-31").AddDays(1).String())
}

func TestOfUsesLocationCalendarDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 03:30 UTC on 10 March is still 9 March in New York
	instant := time.Date(2024, 3, 10, 3, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-09", Of(instant, ny).String())
	assert.Equal(t, "2024-03-10", Of(instant, time.UTC).String())
}

func TestAddDaysAcrossDST(t *testing.T) {
	// 2024-03-10 is the US spring-forward day; calendar math must ignore it
	assert.Equal(t, "2024-03-11", MustParse("2024-03-09").AddDays(2).String())
	assert.Equal(t, "2024-01-01", MustParse("2025-01-01").AddDays(-366).String())
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Date Date `json:"date"`
	}{MustParse("2024-03-10")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-03-10"}`, string(b))

	var out struct {
		Date Date `json:"date"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2024-01-31"}`), &out))
	assert.Equal(t, MustParse("2024-01-31"), out.Date)
}
