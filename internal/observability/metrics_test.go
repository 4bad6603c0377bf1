package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestWatermarksIgnoreZeroTime(t *testing.T) {
	ts := time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)
	RecordActivityStarted(ts)
	RecordActivityStarted(time.Time{})
	require.Equal(t, float64(ts.Unix()), testutil.ToFloat64(activityStartedGauge))

	RecordActivityCompleted(ts.Add(time.Hour))
	RecordActivityCompleted(time.Time{})
	require.Equal(t, float64(ts.Add(time.Hour).Unix()), testutil.ToFloat64(activityCompletedGauge))
}
