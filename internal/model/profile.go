package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RoleTenant is the role given to profiles created from applicant contact details.
const RoleTenant = "tenant"

// Profile represents the profiles table
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// NormalizeEmail returns the form of an email used as the profile natural key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
