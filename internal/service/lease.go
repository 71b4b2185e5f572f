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

// TransferRequest moves an active tenancy to another unit of the same property.
type TransferRequest struct {
	TenancyID uuid.UUID
	NewUnitID uuid.UUID
	Actor     uuid.UUID
	// RecomputeRent replaces the tenancy rent with the new unit's rent.
	// Without it the lease-time snapshot is kept.
	RecomputeRent bool
}

// LeaseManager ends leases and transfers tenants between units.
type LeaseManager struct {
	*base
	inventory *Inventory
}

// GetTenancy retrieves a tenancy by ID.
func (m *LeaseManager) GetTenancy(ctx context.Context, id uuid.UUID) (*model.Tenancy, error) {
	return m.store.GetTenancy(ctx, id)
}

// EndLease ends an active tenancy and frees its unit.
func (m *LeaseManager) EndLease(ctx context.Context, tenancyID, actor uuid.UUID) (err error) {
	start := time.Now()
	defer func() { observe("end_lease", start, err) }()

	var tenancy *model.Tenancy
	err = m.runTx(ctx, func(tx store.Tx) error {
		var err error
		tenancy, err = tx.GetTenancy(ctx, tenancyID)
		if err != nil {
			return err
		}
		if tenancy.Status != model.TenancyActive {
			return fmt.Errorf("%w: tenancy %s", model.ErrAlreadyEnded, tenancy.ID)
		}

		active, err := tx.CountActiveTenancies(ctx, tenancy.UnitID)
		if err != nil {
			return err
		}
		if active != 1 {
			return fmt.Errorf("%w: unit %s has %d active tenancies", model.ErrConflict, tenancy.UnitID, active)
		}
		if _, err := m.inventory.setStatusTx(ctx, tx, tenancy.UnitID, model.UnitOccupied, model.UnitVacant, actor,
			map[string]any{"tenancy_id": tenancy.ID}); err != nil {
			return err
		}

		now := m.now()
		tenancy.Status = model.TenancyEnded
		tenancy.EndedAt = &now
		tenancy.UpdatedAt = now
		if err := tx.UpdateTenancy(ctx, tenancy, model.TenancyActive); err != nil {
			return err
		}
		return recordTransition(ctx, tx, now, model.EntityTenancy, tenancy.ID, string(model.TenancyActive), string(model.TenancyEnded), actor,
			map[string]any{"unit_id": tenancy.UnitID})
	})
	if err != nil {
		if model.Kind(err) == "error" {
			log.Error().Err(err).Str("tenancy_id", tenancyID.String()).Msg("Failed to end lease")
		}
		return err
	}

	log.Info().
		Str("tenancy_id", tenancy.ID.String()).
		Str("unit_id", tenancy.UnitID.String()).
		Str("actor", actor.String()).
		Msg("Lease ended")
	m.events.Emit(model.Event{
		Type:       model.EventTenancyEnded,
		OccurredAt: *tenancy.EndedAt,
		PropertyID: tenancy.PropertyID,
		TenancyID:  idPtr(tenancy.ID),
		UnitID:     idPtr(tenancy.UnitID),
		TenantID:   idPtr(tenancy.TenantID),
		Actor:      actor,
	})
	return nil
}

// TransferUnit moves an active tenancy to a vacant unit of the same
// property: the old unit is freed, the new one occupied and the tenancy
// row repointed, all in one transaction.
func (m *LeaseManager) TransferUnit(ctx context.Context, req TransferRequest) (tenancy *model.Tenancy, err error) {
	start := time.Now()
	defer func() { observe("transfer_unit", start, err) }()

	var oldUnitID uuid.UUID
	err = m.runTx(ctx, func(tx store.Tx) error {
		var err error
		tenancy, err = tx.GetTenancy(ctx, req.TenancyID)
		if err != nil {
			return err
		}
		if tenancy.Status != model.TenancyActive {
			return fmt.Errorf("%w: tenancy %s", model.ErrAlreadyEnded, tenancy.ID)
		}
		if tenancy.UnitID == req.NewUnitID {
			return fmt.Errorf("%w: tenancy %s already occupies unit %s", model.ErrInvalidTransition, tenancy.ID, req.NewUnitID)
		}
		oldUnitID = tenancy.UnitID

		oldUnit, err := tx.GetUnit(ctx, oldUnitID)
		if err != nil {
			return err
		}
		newUnit, err := tx.GetUnit(ctx, req.NewUnitID)
		if err != nil {
			return err
		}
		if newUnit.PropertyID != oldUnit.PropertyID {
			return fmt.Errorf("%w: unit %s belongs to property %s, tenancy is in %s",
				model.ErrCrossProperty, newUnit.ID, newUnit.PropertyID, oldUnit.PropertyID)
		}
		if newUnit.Status != model.UnitVacant {
			return fmt.Errorf("%w: unit %s is %s", model.ErrUnitUnavailable, newUnit.ID, newUnit.Status)
		}

		details := map[string]any{"tenancy_id": tenancy.ID, "from_unit_id": oldUnitID, "to_unit_id": newUnit.ID}
		if _, err := m.inventory.setStatusTx(ctx, tx, oldUnitID, model.UnitOccupied, model.UnitVacant, req.Actor, details); err != nil {
			return err
		}
		if _, err := m.inventory.setStatusTx(ctx, tx, newUnit.ID, newUnit.Status, model.UnitOccupied, req.Actor, details); err != nil {
			return err
		}

		now := m.now()
		tenancy.UnitID = newUnit.ID
		if req.RecomputeRent {
			details["previous_rent"] = tenancy.MonthlyRent
			tenancy.MonthlyRent = newUnit.MonthlyRent
		}
		tenancy.UpdatedAt = now
		if err := tx.UpdateTenancy(ctx, tenancy, model.TenancyActive); err != nil {
			return err
		}
		details["monthly_rent"] = tenancy.MonthlyRent
		return recordTransition(ctx, tx, now, model.EntityTenancy, tenancy.ID, string(model.TenancyActive), string(model.TenancyActive), req.Actor, details)
	})
	if err != nil {
		if model.Kind(err) == "error" {
			log.Error().Err(err).Str("tenancy_id", req.TenancyID.String()).Msg("Failed to transfer tenancy")
		}
		return nil, err
	}

	log.Info().
		Str("tenancy_id", tenancy.ID.String()).
		Str("from_unit_id", oldUnitID.String()).
		Str("to_unit_id", tenancy.UnitID.String()).
		Str("actor", req.Actor.String()).
		Msg("Tenancy transferred")
	m.events.Emit(model.Event{
		Type:         model.EventTenancyTransferred,
		OccurredAt:   tenancy.UpdatedAt,
		PropertyID:   tenancy.PropertyID,
		TenancyID:    idPtr(tenancy.ID),
		UnitID:       idPtr(tenancy.UnitID),
		PreviousUnit: idPtr(oldUnitID),
		TenantID:     idPtr(tenancy.TenantID),
		Actor:        req.Actor,
	})
	return tenancy, nil
}
