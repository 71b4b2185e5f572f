package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
	"github.com/teresa-solution/tenancy-allocation-service/internal/store"
)

// Inventory is the authoritative view of unit status.
type Inventory struct {
	*base
}

// GetVacantUnits lists the units of a property that can be assigned now.
// The list is read fresh every call; assignment re-verifies it anyway.
func (i *Inventory) GetVacantUnits(ctx context.Context, propertyID uuid.UUID) ([]model.Unit, error) {
	return i.store.ListUnits(ctx, propertyID, model.UnitVacant)
}

// SetStatus moves a unit from expected to status. The write is rejected
// with model.ErrConflict if the unit is no longer in expected. Edges into
// or out of occupied belong to assignment and lease operations and are
// refused here.
func (i *Inventory) SetStatus(ctx context.Context, unitID uuid.UUID, status, expected model.UnitStatus, actor uuid.UUID) (unit *model.Unit, err error) {
	start := time.Now()
	defer func() { observe("set_unit_status", start, err) }()

	if !status.Valid() || !expected.Valid() {
		return nil, fmt.Errorf("%w: unknown unit status", model.ErrInvalidInput)
	}
	if status == expected {
		return nil, fmt.Errorf("%w: unit is already %s", model.ErrInvalidInput, status)
	}
	if status == model.UnitOccupied || expected == model.UnitOccupied {
		return nil, fmt.Errorf("%w: occupancy changes only through assignment or lease operations", model.ErrInvalidTransition)
	}

	err = i.runTx(ctx, func(tx store.Tx) error {
		var err error
		unit, err = i.setStatusTx(ctx, tx, unitID, expected, status, actor, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("unit_id", unitID.String()).Str("status", string(status)).Str("actor", actor.String()).Msg("Unit status changed")
	return unit, nil
}

// setStatusTx is the compare-and-swap write shared by every component that
// changes unit status, together with its audit row.
func (i *Inventory) setStatusTx(ctx context.Context, tx store.Tx, unitID uuid.UUID, expected, status model.UnitStatus, actor uuid.UUID, details map[string]any) (*model.Unit, error) {
	unit, err := tx.UpdateUnitStatus(ctx, unitID, expected, status)
	if err != nil {
		return nil, err
	}
	if err := recordTransition(ctx, tx, i.now(), model.EntityUnit, unitID, string(expected), string(status), actor, details); err != nil {
		return nil, err
	}
	return unit, nil
}
