package model

import (
	"time"

	"github.com/google/uuid"
)

// ApplicationStatus is the lifecycle state of an Application.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// Valid reports whether s is a known application status.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationPending, ApplicationApproved, ApplicationRejected:
		return true
	}
	return false
}

// Application represents the applications table
type Application struct {
	ID             uuid.UUID         `json:"id"`
	PropertyID     uuid.UUID         `json:"property_id"`
	ApplicantName  string            `json:"applicant_name"`
	ApplicantEmail string            `json:"applicant_email"`
	ApplicantPhone string            `json:"applicant_phone"`
	Message        string            `json:"message"`
	Status         ApplicationStatus `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// CanTransitionApplication reports whether from -> to is a legal edge.
// approved is terminal. rejected -> pending is only legal when
// reconsideration is allowed.
func CanTransitionApplication(from, to ApplicationStatus, allowReconsider bool) bool {
	switch {
	case from == ApplicationPending && to == ApplicationApproved:
		return true
	case from == ApplicationPending && to == ApplicationRejected:
		return true
	case from == ApplicationRejected && to == ApplicationPending:
		return allowReconsider
	}
	return false
}
