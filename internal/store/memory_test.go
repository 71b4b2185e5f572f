package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
)

func TestMemory_WithTx_DiscardsWritesOnError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	unit := model.Unit{ID: uuid.New(), PropertyID: uuid.New(), Status: model.UnitVacant}
	m.PutUnit(unit)

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.UpdateUnitStatus(ctx, unit.ID, model.UnitVacant, model.UnitOccupied); err != nil {
			return err
		}
		if err := tx.InsertTenancy(ctx, &model.Tenancy{UnitID: unit.ID, Status: model.TenancyActive}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := m.GetUnit(ctx, unit.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UnitVacant, got.Status)
	assert.Empty(t, m.ActiveTenancies(unit.ID))
}

func TestMemory_UpdateUnitStatus_ExpectedMismatch(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	unit := model.Unit{ID: uuid.New(), Status: model.UnitOccupied}
	m.PutUnit(unit)

	err := m.WithTx(ctx, func(tx Tx) error {
		_, err := tx.UpdateUnitStatus(ctx, unit.ID, model.UnitVacant, model.UnitOccupied)
		return err
	})
	assert.ErrorIs(t, err, model.ErrConflict)

	err = m.WithTx(ctx, func(tx Tx) error {
		_, err := tx.UpdateUnitStatus(ctx, uuid.New(), model.UnitVacant, model.UnitOccupied)
		return err
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMemory_OneActiveTenancyPerUnit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	unitID := uuid.New()

	err := m.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertTenancy(ctx, &model.Tenancy{UnitID: unitID, Status: model.TenancyActive}); err != nil {
			return err
		}
		return tx.InsertTenancy(ctx, &model.Tenancy{UnitID: unitID, Status: model.TenancyActive})
	})
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.Empty(t, m.ActiveTenancies(unitID))
}

func TestMemory_CreateProfile_ConcurrentSameEmail(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		duplicate int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.CreateProfile(ctx, &model.Profile{Email: "A@x.com", Role: model.RoleTenant})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				created++
			} else if errors.Is(err, model.ErrDuplicate) {
				duplicate++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 7, duplicate)

	p, err := m.FindProfileByEmail(ctx, "a@X.COM")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "a@x.com", p.Email)
}

func TestMemory_Anomalies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	property := uuid.New()

	empty := model.Unit{ID: uuid.New(), PropertyID: property, Status: model.UnitOccupied}
	healthy := model.Unit{ID: uuid.New(), PropertyID: property, Status: model.UnitOccupied}
	m.PutUnit(empty)
	m.PutUnit(healthy)
	m.PutTenancy(model.Tenancy{ID: uuid.New(), UnitID: healthy.ID, Status: model.TenancyActive})

	appID := uuid.New()
	m.PutApplication(model.Application{ID: appID, PropertyID: property, Status: model.ApplicationApproved})

	occ, err := m.UnitOccupancyAnomalies(ctx)
	require.NoError(t, err)
	require.Len(t, occ, 1)
	assert.Equal(t, empty.ID, occ[0].UnitID)

	apps, err := m.ApprovedWithoutTenancy(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, appID, apps[0].ID)
}
