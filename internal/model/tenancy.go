package model

import (
	"time"

	"github.com/google/uuid"
)

// TenancyStatus is the lifecycle state of a Tenancy.
type TenancyStatus string

const (
	TenancyActive TenancyStatus = "active"
	TenancyEnded  TenancyStatus = "ended"
)

// Tenancy represents the tenancies table.
//
// MonthlyRent is a snapshot of the unit rent taken when the tenancy was
// created; it does not follow later changes to the unit.
type Tenancy struct {
	ID              uuid.UUID     `json:"id"`
	PropertyID      uuid.UUID     `json:"property_id"`
	UnitID          uuid.UUID     `json:"unit_id"`
	TenantID        uuid.UUID     `json:"tenant_id"`
	LandlordID      uuid.UUID     `json:"landlord_id"`
	ApplicationID   *uuid.UUID    `json:"application_id,omitempty"`
	LeaseStartDate  time.Time     `json:"lease_start_date"`
	LeaseEndDate    time.Time     `json:"lease_end_date"`
	MonthlyRent     int64         `json:"monthly_rent"`
	SecurityDeposit int64         `json:"security_deposit"`
	Status          TenancyStatus `json:"status"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
