package trigger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arnegrau/duratask/trigger"
)

func TestCronOracleNext(t *testing.T) {
	oracle := trigger.NewCronOracle()

	from := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	next, ok, err := oracle.Next("0 0 * * * *", from)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 8, 6, 13, 0, 0, 0, time.UTC), next)
}

func TestCronOracleNextEmptyExpression(t *testing.T) {
	oracle := trigger.NewCronOracle()

	next, ok, err := oracle.Next("  ", time.Now())
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, next.IsZero())
}

func TestCronOracleNextInvalidExpression(t *testing.T) {
	oracle := trigger.NewCronOracle()

	_, _, err := oracle.Next("not a cron expression", time.Now())
	require.Error(t, err)
	require.ErrorIs(t, err, trigger.ErrInvalidExpression)
}

func TestCronOracleBetween(t *testing.T) {
	oracle := trigger.NewCronOracle()

	from := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 6, 3, 0, 0, 0, time.UTC)
	occurrences, err := oracle.Between("0 0 * * * *", from, to)
	require.NoError(t, err)
	require.Equal(t, []time.Time{
		time.Date(2026, 8, 6, 1, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 6, 2, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 6, 3, 0, 0, 0, time.UTC),
	}, occurrences)
}

func TestCronOracleBetweenExcludesFromInclusesTo(t *testing.T) {
	oracle := trigger.NewCronOracle()

	from := time.Date(2026, 8, 6, 1, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 6, 1, 0, 0, 0, time.UTC)
	occurrences, err := oracle.Between("0 0 * * * *", from, to)
	require.NoError(t, err)
	require.Empty(t, occurrences)
}

func TestCronOracleBetweenEmptyExpression(t *testing.T) {
	oracle := trigger.NewCronOracle()

	occurrences, err := oracle.Between("", time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Nil(t, occurrences)
}

func TestCronOracleEveryDescriptor(t *testing.T) {
	oracle := trigger.NewCronOracle()

	from := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	next, ok, err := oracle.Next("@every 1m", from)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, from.Add(time.Minute), next)
}
