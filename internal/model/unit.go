package model

import (
	"time"

	"github.com/google/uuid"
)

// UnitStatus is the occupancy state of a Unit.
type UnitStatus string

const (
	UnitVacant      UnitStatus = "vacant"
	UnitOccupied    UnitStatus = "occupied"
	UnitMaintenance UnitStatus = "maintenance"
)

// Valid reports whether s is a known unit status.
func (s UnitStatus) Valid() bool {
	switch s {
	case UnitVacant, UnitOccupied, UnitMaintenance:
		return true
	}
	return false
}

// Unit represents the units table. MonthlyRent is in minor currency units.
type Unit struct {
	ID          uuid.UUID  `json:"id"`
	PropertyID  uuid.UUID  `json:"property_id"`
	UnitNumber  string     `json:"unit_number"`
	UnitType    string     `json:"unit_type"`
	MonthlyRent int64      `json:"monthly_rent"`
	Status      UnitStatus `json:"status"`
	Version     int64      `json:"version"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
