package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uma-arai/barber-booking/internal/model"
)

func TestMemoryStore_CopiesOnLoad(t *testing.T) {
	store := NewMemoryStore(sampleReservations()...)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	got[0].CustomerName = "changed"

	again, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "John Smith", again[0].CustomerName)
}

func TestMemoryStore_Errors(t *testing.T) {
	store := NewMemoryStore()
	store.SaveErr = errors.New("disk full")

	err := store.Save(context.Background(), sampleReservations())
	var storeErr *model.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, 0, store.Saves())
}

func TestMemoryStore_Mutate(t *testing.T) {
	store := NewMemoryStore(sampleReservations()...)

	err := store.Mutate(context.Background(), func(current []model.Reservation) ([]model.Reservation, bool, error) {
		return current[:1], true, nil
	})
	require.NoError(t, err)
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, store.Saves())

	err = store.Mutate(context.Background(), func(current []model.Reservation) ([]model.Reservation, bool, error) {
		return nil, false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Saves())

	store.LoadErr = errors.New("offline")
	err = store.Mutate(context.Background(), func(current []model.Reservation) ([]model.Reservation, bool, error) {
		t.Error("fn must not run when load fails")
		return current, true, nil
	})
	var storeErr *model.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "load", storeErr.Op)
}
