package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entity names recorded in the audit trail.
const (
	EntityApplication = "application"
	EntityUnit        = "unit"
	EntityTenancy     = "tenancy"
)

// Transition represents one row of the state_transitions audit table.
type Transition struct {
	ID        uuid.UUID       `json:"id"`
	Entity    string          `json:"entity"`
	EntityID  uuid.UUID       `json:"entity_id"`
	FromState string          `json:"from_state"`
	ToState   string          `json:"to_state"`
	Actor     uuid.UUID       `json:"actor"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Violation kinds reported by reconciliation.
const (
	ViolationOccupiedWithoutTenancy  = "occupied_without_tenancy"
	ViolationMultipleActiveTenancies = "multiple_active_tenancies"
	ViolationTenancyOnUnoccupiedUnit = "active_tenancy_on_unoccupied_unit"
	ViolationApprovedWithoutTenancy  = "approved_application_without_tenancy"
)

// UnitOccupancy pairs a unit's recorded status with the number of active
// tenancies that reference it.
type UnitOccupancy struct {
	UnitID          uuid.UUID  `json:"unit_id"`
	PropertyID      uuid.UUID  `json:"property_id"`
	Status          UnitStatus `json:"status"`
	ActiveTenancies int        `json:"active_tenancies"`
}

// Violation is a single broken cross-entity invariant.
type Violation struct {
	Kind       string    `json:"kind"`
	Entity     string    `json:"entity"`
	EntityID   uuid.UUID `json:"entity_id"`
	PropertyID uuid.UUID `json:"property_id"`
	Detail     string    `json:"detail"`
}

// ReconciliationReport is the outcome of one invariant scan.
type ReconciliationReport struct {
	CheckedAt  time.Time   `json:"checked_at"`
	Violations []Violation `json:"violations"`
}

// Clean reports whether the scan found nothing.
func (r *ReconciliationReport) Clean() bool {
	return len(r.Violations) == 0
}
