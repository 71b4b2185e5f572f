package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionApplication(t *testing.T) {
	cases := []struct {
		from, to   ApplicationStatus
		reconsider bool
		want       bool
	}{
		{ApplicationPending, ApplicationApproved, false, true},
		{ApplicationPending, ApplicationRejected, false, true},
		{ApplicationRejected, ApplicationPending, true, true},
		{ApplicationRejected, ApplicationPending, false, false},
		{ApplicationApproved, ApplicationPending, true, false},
		{ApplicationApproved, ApplicationRejected, true, false},
		{ApplicationRejected, ApplicationApproved, true, false},
		{ApplicationPending, ApplicationPending, true, false},
	}
	for _, c := range cases {
		got := CanTransitionApplication(c.from, c.to, c.reconsider)
		assert.Equal(t, c.want, got, "%s -> %s (reconsider=%v)", c.from, c.to, c.reconsider)
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.com "))
	assert.True(t, UnitMaintenance.Valid())
	assert.False(t, UnitStatus("let").Valid())
}
