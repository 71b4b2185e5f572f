package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event published after a committed transition.
type EventType string

const (
	EventTenancyCreated          EventType = "TenancyCreated"
	EventTenancyEnded            EventType = "TenancyEnded"
	EventTenancyTransferred      EventType = "TenancyTransferred"
	EventApplicationRejected     EventType = "ApplicationRejected"
	EventApplicationReconsidered EventType = "ApplicationReconsidered"
)

// Event is the envelope handed to notification and analytics consumers.
type Event struct {
	ID            uuid.UUID  `json:"id"`
	Type          EventType  `json:"type"`
	OccurredAt    time.Time  `json:"occurred_at"`
	PropertyID    uuid.UUID  `json:"property_id"`
	TenancyID     *uuid.UUID `json:"tenancy_id,omitempty"`
	ApplicationID *uuid.UUID `json:"application_id,omitempty"`
	UnitID        *uuid.UUID `json:"unit_id,omitempty"`
	PreviousUnit  *uuid.UUID `json:"previous_unit_id,omitempty"`
	TenantID      *uuid.UUID `json:"tenant_id,omitempty"`
	Actor         uuid.UUID  `json:"actor"`
}
