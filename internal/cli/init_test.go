package cli

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveNow(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)
	clock := func() time.Time { return time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC) }

	t.Run("host clock in location", func(t *testing.T) {
		now, err := ResolveNow("", clock, rome)
		require.NoError(t, err)
		assert.Equal(t, 2, now.Day(), "23:30 UTC is already the next day in Rome")
	})

	t.Run("explicit date", func(t *testing.T) {
		now, err := ResolveNow("2025-04-15", clock, rome)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 4, 15, 0, 0, 0, 0, rome), now)
	})

	t.Run("nil location is UTC", func(t *testing.T) {
		now, err := ResolveNow("2025-04-15", clock, nil)
		require.NoError(t, err)
		assert.Equal(t, time.UTC, now.Location())
	})

	t.Run("bad date", func(t *testing.T) {
		_, err := ResolveNow("15/04/2025", clock, rome)
		assert.Error(t, err)
	})
}

func TestSetupLoggerUnknownLevel(t *testing.T) {
	logger := SetupLogger("chatty")
	require.NotNil(t, logger)
	assert.Equal(t, "app", logger.Component())
}
