package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
	"github.com/teresa-solution/tenancy-allocation-service/internal/store"
)

// AssignRequest turns a pending application into an active tenancy.
type AssignRequest struct {
	ApplicationID uuid.UUID
	UnitID        uuid.UUID
	LandlordID    uuid.UUID
	// LeaseEndDate defaults to DefaultLeaseDays after today.
	LeaseEndDate *time.Time
	// SecurityDeposit defaults to zero.
	SecurityDeposit *int64
}

// DirectAssignRequest places a tenant in a unit without an application.
type DirectAssignRequest struct {
	UnitID          uuid.UUID
	LandlordID      uuid.UUID
	TenantEmail     string
	TenantName      string
	TenantPhone     string
	LeaseEndDate    *time.Time
	SecurityDeposit *int64
}

// Allocator performs the atomic application -> tenancy -> unit transition.
type Allocator struct {
	*base
	inventory *Inventory
	registry  *Registry
	identity  *IdentityResolver
}

type allocation struct {
	unitID          uuid.UUID
	propertyID      *uuid.UUID
	tenantID        uuid.UUID
	landlordID      uuid.UUID
	applicationID   *uuid.UUID
	leaseEndDate    *time.Time
	securityDeposit *int64
}

// Assign allocates unitID to the applicant of applicationID.
//
// The tenant profile is resolved first and on its own, since resolution is
// idempotent. Everything after that commits or rolls back together: the
// unit is re-read, the tenancy inserted, the unit moved vacant -> occupied
// against the status just read, and the application moved pending ->
// approved. A second caller racing for the same unit gets model.ErrConflict
// or model.ErrUnitUnavailable; nothing is retried here.
func (a *Allocator) Assign(ctx context.Context, req AssignRequest) (tenancy *model.Tenancy, err error) {
	start := time.Now()
	defer func() { observe("assign", start, err) }()

	app, err := a.store.GetApplication(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != model.ApplicationPending {
		return nil, fmt.Errorf("%w: application %s is %s", model.ErrInvalidTransition, app.ID, app.Status)
	}

	profile, err := a.identity.Resolve(ctx, app.ApplicantEmail, app.ApplicantName, app.ApplicantPhone)
	if err != nil {
		return nil, err
	}

	alloc := allocation{
		unitID:          req.UnitID,
		propertyID:      &app.PropertyID,
		tenantID:        profile.ID,
		landlordID:      req.LandlordID,
		applicationID:   &app.ID,
		leaseEndDate:    req.LeaseEndDate,
		securityDeposit: req.SecurityDeposit,
	}
	err = a.runTx(ctx, func(tx store.Tx) error {
		var err error
		if tenancy, err = a.allocate(ctx, tx, alloc); err != nil {
			return err
		}
		_, err = a.registry.transitionTx(ctx, tx, app.ID, model.ApplicationPending, model.ApplicationApproved, req.LandlordID,
			map[string]any{"tenancy_id": tenancy.ID})
		return err
	})
	if err != nil {
		a.logFailure("assign", req.UnitID, err)
		return nil, err
	}

	log.Info().
		Str("tenancy_id", tenancy.ID.String()).
		Str("unit_id", tenancy.UnitID.String()).
		Str("application_id", app.ID.String()).
		Str("actor", req.LandlordID.String()).
		Msg("Tenancy created from application")
	a.emitCreated(tenancy)
	return tenancy, nil
}

// AssignDirect allocates a unit to a tenant identified by contact details.
func (a *Allocator) AssignDirect(ctx context.Context, req DirectAssignRequest) (tenancy *model.Tenancy, err error) {
	start := time.Now()
	defer func() { observe("assign_direct", start, err) }()

	profile, err := a.identity.Resolve(ctx, req.TenantEmail, req.TenantName, req.TenantPhone)
	if err != nil {
		return nil, err
	}

	err = a.runTx(ctx, func(tx store.Tx) error {
		var err error
		tenancy, err = a.allocate(ctx, tx, allocation{
			unitID:          req.UnitID,
			tenantID:        profile.ID,
			landlordID:      req.LandlordID,
			leaseEndDate:    req.LeaseEndDate,
			securityDeposit: req.SecurityDeposit,
		})
		return err
	})
	if err != nil {
		a.logFailure("assign_direct", req.UnitID, err)
		return nil, err
	}

	log.Info().
		Str("tenancy_id", tenancy.ID.String()).
		Str("unit_id", tenancy.UnitID.String()).
		Str("actor", req.LandlordID.String()).
		Msg("Tenancy created by direct assignment")
	a.emitCreated(tenancy)
	return tenancy, nil
}

// allocate inserts an active tenancy and occupies its unit inside tx.
func (a *Allocator) allocate(ctx context.Context, tx store.Tx, req allocation) (*model.Tenancy, error) {
	now := a.now()
	leaseStart := startOfDay(now)
	leaseEnd := leaseStart.AddDate(0, 0, a.opts.DefaultLeaseDays)
	if req.leaseEndDate != nil {
		leaseEnd = startOfDay(*req.leaseEndDate)
	}
	if !leaseEnd.After(leaseStart) {
		return nil, fmt.Errorf("%w: lease end date must be after %s", model.ErrInvalidInput, leaseStart.Format(time.DateOnly))
	}
	var deposit int64
	if req.securityDeposit != nil {
		deposit = *req.securityDeposit
	}
	if deposit < 0 {
		return nil, fmt.Errorf("%w: security deposit cannot be negative", model.ErrInvalidInput)
	}

	unit, err := tx.GetUnit(ctx, req.unitID)
	if err != nil {
		return nil, err
	}
	if req.propertyID != nil && unit.PropertyID != *req.propertyID {
		return nil, fmt.Errorf("%w: unit %s is not part of property %s", model.ErrCrossProperty, unit.ID, *req.propertyID)
	}
	if unit.Status != model.UnitVacant {
		return nil, fmt.Errorf("%w: unit %s is %s", model.ErrUnitUnavailable, unit.ID, unit.Status)
	}

	tenancy := &model.Tenancy{
		ID:              uuid.New(),
		PropertyID:      unit.PropertyID,
		UnitID:          unit.ID,
		TenantID:        req.tenantID,
		LandlordID:      req.landlordID,
		ApplicationID:   req.applicationID,
		LeaseStartDate:  leaseStart,
		LeaseEndDate:    leaseEnd,
		MonthlyRent:     unit.MonthlyRent,
		SecurityDeposit: deposit,
		Status:          model.TenancyActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.InsertTenancy(ctx, tenancy); err != nil {
		return nil, err
	}
	if err := recordTransition(ctx, tx, now, model.EntityTenancy, tenancy.ID, "", string(model.TenancyActive), req.landlordID,
		map[string]any{"unit_id": unit.ID, "monthly_rent": unit.MonthlyRent}); err != nil {
		return nil, err
	}

	if _, err := a.inventory.setStatusTx(ctx, tx, unit.ID, unit.Status, model.UnitOccupied, req.landlordID,
		map[string]any{"tenancy_id": tenancy.ID}); err != nil {
		return nil, err
	}
	return tenancy, nil
}

func (a *Allocator) emitCreated(t *model.Tenancy) {
	a.events.Emit(model.Event{
		Type:          model.EventTenancyCreated,
		OccurredAt:    t.CreatedAt,
		PropertyID:    t.PropertyID,
		TenancyID:     idPtr(t.ID),
		ApplicationID: t.ApplicationID,
		UnitID:        idPtr(t.UnitID),
		TenantID:      idPtr(t.TenantID),
		Actor:         t.LandlordID,
	})
}

func (a *Allocator) logFailure(operation string, unitID uuid.UUID, err error) {
	switch {
	case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrUnitUnavailable):
		log.Warn().Err(err).Str("operation", operation).Str("unit_id", unitID.String()).Msg("Unit could not be allocated")
	case model.Kind(err) == "error":
		log.Error().Err(err).Str("operation", operation).Str("unit_id", unitID.String()).Msg("Allocation failed")
	}
}
