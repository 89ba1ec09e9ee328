package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, expr string) *Schedule {
	t.Helper()
	s, err := ParseCron(expr)
	require.NoError(t, err)
	return s
}

func TestParseCron_RejectsWrongFieldCount(t *testing.T) {
	_, err := ParseCron("0 2 * *")
	assert.Error(t, err)
}

func TestParseCron_RejectsOutOfRangeValue(t *testing.T) {
	_, err := ParseCron("0 25 * * *")
	assert.Error(t, err)
}

func TestSchedule_Next_DailyAt2AM(t *testing.T) {
	s := mustParse(t, "0 2 * * *")
	from := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	next, err := s.Next(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 1, 2, 0, 0, 0, time.UTC), next)
}

func TestSchedule_Next_SameDayWhenBeforeFireTime(t *testing.T) {
	s := mustParse(t, "0 2 * * *")
	from := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	next, err := s.Next(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 31, 2, 0, 0, 0, time.UTC), next)
}

func TestSchedule_Next_StepExpression(t *testing.T) {
	s := mustParse(t, "*/15 * * * *")
	from := time.Date(2026, 7, 31, 10, 1, 0, 0, time.UTC)
	next, err := s.Next(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 7, 31, 10, 15, 0, 0, time.UTC), next)
}

func TestSchedule_Next_DayOfWeekRestriction(t *testing.T) {
	s := mustParse(t, "0 9 * * 1") // Mondays at 9am
	from := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)  // Friday
	next, err := s.Next(from)
	require.NoError(t, err)
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 9, next.Hour())
}

func TestSchedule_Next_DomAndDowBothRestrictedIsOR(t *testing.T) {
	// 1st of the month OR Monday, at midnight.
	s := mustParse(t, "0 0 1 * 1")
	from := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) // Friday
	next, err := s.Next(from)
	require.NoError(t, err)
	assert.True(t, next.Day() == 1 || next.Weekday() == time.Monday)
}
