package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthBounds(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	start, end := MonthBounds(2030, time.December, loc)
	assert.Equal(t, time.Date(2030, 12, 1, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2031, 1, 1, 0, 0, 0, 0, loc), end)
}

func TestMinutes(t *testing.T) {
	assert.Equal(t, 90*time.Minute, Minutes(90))
}
