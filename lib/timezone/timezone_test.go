package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocation(t *testing.T) {
	require.NotNil(t, Location)

	// CET in winter, CEST in summer
	winter := time.Date(2024, time.January, 15, 12, 0, 0, 0, Location)
	_, offset := winter.Zone()
	require.Equal(t, 1*60*60, offset)

	summer := time.Date(2024, time.July, 15, 12, 0, 0, 0, Location)
	_, offset = summer.Zone()
	require.Equal(t, 2*60*60, offset)
}

func TestNow(t *testing.T) {
	now := Now()
	require.Equal(t, Location, now.Location())
	require.WithinDuration(t, time.Now(), now, time.Second)
}
