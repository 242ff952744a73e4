package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/careloop/pkg/persistence"
	"github.com/careloop/careloop/pkg/persistence/file"
	"github.com/careloop/careloop/pkg/services"
)

func TestSaveSweepSchedule(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	service := services.NewSweep(store)
	ctx := t.Context()

	schedule, err := service.Save(ctx, "clinic-1", "0 8 * * *", true)
	require.NoError(t, err)
	assert.Equal(t, "clinic-1", schedule.TenantID)
	assert.True(t, schedule.Active)
	assert.True(t, schedule.NextDueAt.After(time.Now().UTC().Add(-time.Minute)))

	fetched, err := service.Fetch(ctx, "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, "0 8 * * *", fetched.CronExpression)
}

func TestSaveSweepScheduleReplacesExisting(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	service := services.NewSweep(store)
	ctx := t.Context()

	_, err := service.Save(ctx, "clinic-1", "0 8 * * *", true)
	require.NoError(t, err)

	_, err = service.Save(ctx, "clinic-1", "30 17 * * 5", false)
	require.NoError(t, err)

	fetched, err := service.Fetch(ctx, "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, "30 17 * * 5", fetched.CronExpression)
	assert.False(t, fetched.Active)
}

func TestSaveSweepScheduleInvalidCron(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	service := services.NewSweep(store)

	tests := []string{"", "not a cron", "99 99 * * *", "* * *"}

	for _, expr := range tests {
		_, err := service.Save(t.Context(), "clinic-1", expr, true)
		require.Error(t, err, "expression %q", expr)
		assert.True(t, services.IsValidationError(err), "expression %q", expr)
	}
}

func TestFetchMissingSweepSchedule(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	service := services.NewSweep(store)

	_, err := service.Fetch(t.Context(), "clinic-1")
	assert.True(t, persistence.IsSweepScheduleNotFound(err))
}
