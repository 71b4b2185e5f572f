package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
)

// Tx is the set of reads and writes available inside one atomic transition.
// Every write is conditional on the state the caller last observed:
// a mismatch is reported as model.ErrConflict or model.ErrInvalidTransition
// and the enclosing transaction must be abandoned.
type Tx interface {
	GetApplication(ctx context.Context, id uuid.UUID) (*model.Application, error)
	UpdateApplicationStatus(ctx context.Context, id uuid.UUID, from, to model.ApplicationStatus) (*model.Application, error)

	GetUnit(ctx context.Context, id uuid.UUID) (*model.Unit, error)
	UpdateUnitStatus(ctx context.Context, id uuid.UUID, expected, status model.UnitStatus) (*model.Unit, error)

	GetTenancy(ctx context.Context, id uuid.UUID) (*model.Tenancy, error)
	InsertTenancy(ctx context.Context, t *model.Tenancy) error
	UpdateTenancy(ctx context.Context, t *model.Tenancy, expected model.TenancyStatus) error
	CountActiveTenancies(ctx context.Context, unitID uuid.UUID) (int, error)

	InsertTransition(ctx context.Context, tr *model.Transition) error
}

// Store is the relational store shared by all allocation components.
type Store interface {
	// WithTx runs fn inside one transaction. The transaction commits only
	// if fn returns nil; any error rolls back every write made through tx.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetApplication(ctx context.Context, id uuid.UUID) (*model.Application, error)
	ListApplications(ctx context.Context, propertyID uuid.UUID, status model.ApplicationStatus) ([]model.Application, error)
	ListUnits(ctx context.Context, propertyID uuid.UUID, status model.UnitStatus) ([]model.Unit, error)
	GetTenancy(ctx context.Context, id uuid.UUID) (*model.Tenancy, error)

	// FindProfileByEmail returns nil, nil when no profile has the email.
	FindProfileByEmail(ctx context.Context, email string) (*model.Profile, error)
	// CreateProfile returns model.ErrDuplicate if the email is taken.
	CreateProfile(ctx context.Context, p *model.Profile) error

	ListTransitions(ctx context.Context, entity string, entityID uuid.UUID) ([]model.Transition, error)

	// UnitOccupancyAnomalies returns the units whose status disagrees with
	// the number of active tenancies referencing them.
	UnitOccupancyAnomalies(ctx context.Context) ([]model.UnitOccupancy, error)
	// ApprovedWithoutTenancy returns approved applications that never
	// produced a tenancy.
	ApprovedWithoutTenancy(ctx context.Context) ([]model.Application, error)

	Close() error
}
