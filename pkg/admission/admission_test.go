package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, limits Limits) *Controller {
	t.Helper()
	c := NewController(limits)
	t.Cleanup(c.Stop)
	return c
}

func TestCheckRequestRateRejectsAboveCap(t *testing.T) {
	c := newTestController(t, Limits{
		RequestWindow: time.Minute,
		MaxRequests:   3,
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, c.CheckRequestRate("10.0.0.1"))
	}

	err := c.CheckRequestRate("10.0.0.1")
	require.Error(t, err)
	require.True(t, IsAdmissionError(err))

	e := err.(*Error)
	assert.Equal(t, ReasonRateLimited, e.Reason)
	assert.True(t, e.RetryAfter > 0)
	assert.True(t, e.RetryAfter <= time.Minute)
}

func TestCheckRequestRateCountsPerIP(t *testing.T) {
	c := newTestController(t, Limits{
		RequestWindow: time.Minute,
		MaxRequests:   1,
	})

	require.NoError(t, c.CheckRequestRate("10.0.0.1"))
	require.Error(t, c.CheckRequestRate("10.0.0.1"))

	// A different IP has its own window.
	require.NoError(t, c.CheckRequestRate("10.0.0.2"))
}

func TestCheckRequestRateResetsAfterWindow(t *testing.T) {
	c := newTestController(t, Limits{
		RequestWindow: 50 * time.Millisecond,
		MaxRequests:   1,
	})

	require.NoError(t, c.CheckRequestRate("10.0.0.1"))
	require.Error(t, c.CheckRequestRate("10.0.0.1"))

	time.Sleep(80 * time.Millisecond)

	require.NoError(t, c.CheckRequestRate("10.0.0.1"))
}

func TestConnectionQuota(t *testing.T) {
	c := newTestController(t, Limits{
		RequestWindow: time.Minute,
		MaxConnsPerIP: 2,
	})

	require.NoError(t, c.CheckConnectionQuota("10.0.0.1"))
	require.NoError(t, c.CheckConnectionQuota("10.0.0.1"))
	assert.Equal(t, 2, c.ActiveConnections("10.0.0.1"))

	err := c.CheckConnectionQuota("10.0.0.1")
	require.Error(t, err)
	assert.Equal(t, ReasonConnectionQuota, err.(*Error).Reason)

	c.ReleaseConnection("10.0.0.1")
	require.NoError(t, c.CheckConnectionQuota("10.0.0.1"))
}

func TestReleaseConnectionNeverGoesNegative(t *testing.T) {
	c := newTestController(t, Limits{
		RequestWindow: time.Minute,
		MaxConnsPerIP: 1,
	})

	// Double release must not open a second slot.
	require.NoError(t, c.CheckConnectionQuota("10.0.0.1"))
	c.ReleaseConnection("10.0.0.1")
	c.ReleaseConnection("10.0.0.1")

	require.NoError(t, c.CheckConnectionQuota("10.0.0.1"))
	require.Error(t, c.CheckConnectionQuota("10.0.0.1"))
}

func TestCheckSessionQuota(t *testing.T) {
	c := newTestController(t, Limits{
		RequestWindow:    time.Minute,
		MaxSessionsPerIP: 2,
	})

	require.NoError(t, c.CheckSessionQuota("10.0.0.1", 0))
	require.NoError(t, c.CheckSessionQuota("10.0.0.1", 1))

	err := c.CheckSessionQuota("10.0.0.1", 2)
	require.Error(t, err)
	assert.Equal(t, ReasonSessionQuota, err.(*Error).Reason)
}
