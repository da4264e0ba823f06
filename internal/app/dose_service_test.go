package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bolus/internal/adapter/memory"
	"bolus/internal/app"
	"bolus/internal/domain"
)

func TestDoseService_Calculate(t *testing.T) {
	svc := app.NewDoseService(domain.DefaultDosingConfig(), nil, discard())
	at := time.Date(2026, time.March, 1, 8, 15, 42, 0, time.Local)

	c, err := svc.Calculate(180, 60, 10, domain.LockedTimestamp(at))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, c.Breakdown.CorrectionUnits, 1e-9)
	assert.InDelta(t, 6.0, c.Breakdown.MealUnits, 1e-9)
	assert.Equal(t, 8, c.Breakdown.RoundedDose)
	assert.Equal(t, domain.AdvisoryNormal, c.Breakdown.Advisory)
	assert.False(t, c.Saved)

	assert.Equal(t, at.Truncate(time.Minute), c.Entry.Timestamp)
	assert.Equal(t, 8, c.Entry.Dose)
	assert.Equal(t, 10, c.Entry.CarbRatio)
}

func TestDoseService_Calculate_ZonedTimestamp(t *testing.T) {
	svc := app.NewDoseService(domain.DefaultDosingConfig(), nil, discard())
	at := time.Date(2026, time.October, 17, 8, 30, 20, 0, time.UTC)

	c, err := svc.Calculate(100, 30, 10, domain.EditingTimestamp(at))
	require.NoError(t, err)
	assert.Equal(t, time.Local, c.Entry.Timestamp.Location())
	assert.True(t, c.Entry.Timestamp.Equal(at.Truncate(time.Minute)))
}

func TestDoseService_Calculate_AutoUsesNow(t *testing.T) {
	svc := app.NewDoseService(domain.DefaultDosingConfig(), nil, discard())

	before := time.Now().Truncate(time.Minute)
	c, err := svc.Calculate(100, 0, 10, domain.AutoTimestamp())
	require.NoError(t, err)
	assert.False(t, c.Entry.Timestamp.Before(before))
	assert.Zero(t, c.Entry.Timestamp.Second())
}

func TestDoseService_CalculateAndRecord(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	history := app.NewHistoryService(db, discard())
	svc := app.NewDoseService(domain.DefaultDosingConfig(), history, discard())
	at := time.Date(2026, time.March, 1, 8, 0, 0, 0, time.Local)

	c, err := svc.CalculateAndRecord(ctx, "ana", 65, 30, 10, domain.LockedTimestamp(at))
	require.NoError(t, err)
	assert.True(t, c.Saved)
	assert.Equal(t, domain.AdvisoryHypoglycemia, c.Breakdown.Advisory)
	assert.False(t, c.Breakdown.Administrable())

	stored, err := db.Load(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, c.Entry, stored[0])
}

func TestDoseService_CalculateAndRecord_InvalidRatio(t *testing.T) {
	repo := &mockRecordRepo{
		appendFn: func(context.Context, string, domain.Entry) ([]domain.Entry, error) {
			t.Fatal("nothing should be appended")
			return nil, nil
		},
	}
	svc := app.NewDoseService(domain.DefaultDosingConfig(), app.NewHistoryService(repo, discard()), discard())

	_, err := svc.CalculateAndRecord(context.Background(), "ana", 150, 45, 0, domain.AutoTimestamp())
	assert.ErrorIs(t, err, domain.ErrInvalidRatio)
}

func TestDoseService_CalculateAndRecord_StoreFailure(t *testing.T) {
	repo := &mockRecordRepo{
		appendFn: func(context.Context, string, domain.Entry) ([]domain.Entry, error) {
			return nil, domain.ErrStoreIO
		},
	}
	svc := app.NewDoseService(domain.DefaultDosingConfig(), app.NewHistoryService(repo, discard()), discard())

	c, err := svc.CalculateAndRecord(context.Background(), "ana", 150, 45, 10, domain.AutoTimestamp())
	assert.ErrorIs(t, err, domain.ErrStoreIO)
	assert.False(t, c.Saved)
	assert.Equal(t, 6, c.Breakdown.RoundedDose)
}
